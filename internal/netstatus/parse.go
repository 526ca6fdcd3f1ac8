package netstatus

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dirdoctor/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// parser accumulates fields of a single status document.
type parser struct {
	status string

	validAfter    time.Time
	dirKeyExpires time.Time
	method        int
	methods       map[int]bool
	clientVers    []string
	serverVers    []string
	params        map[string]int
	dirSources    []dirSource
	sigIdentities []string
	entries       []model.StatusEntry
	footer        bool
}

type dirSource struct {
	nickname string
	identity string
	address  string
	dirPort  int
}

func parseStatus(lines []string) (model.Descriptor, error) {
	p := &parser{params: map[string]int{}}
	var cur *model.StatusEntry
	inObject := false

	for n, line := range lines {
		if inObject {
			if strings.HasPrefix(line, "-----END") {
				inObject = false
			}
			continue
		}
		if strings.HasPrefix(line, "-----BEGIN") {
			inObject = true
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		kw, args := fields[0], fields[1:]
		var err error

		switch kw {
		case "vote-status":
			if len(args) != 1 {
				err = fmt.Errorf("expected one argument")
			} else {
				p.status = args[0]
			}
		case "consensus-method":
			p.method, err = parseInt(args)
		case "consensus-methods":
			p.methods = map[int]bool{}
			for _, a := range args {
				m, perr := strconv.Atoi(a)
				if perr != nil {
					err = perr
					break
				}
				p.methods[m] = true
			}
		case "valid-after":
			p.validAfter, err = parseTime(args)
		case "dir-key-expires":
			p.dirKeyExpires, err = parseTime(args)
		case "client-versions":
			p.clientVers = parseList(args)
		case "server-versions":
			p.serverVers = parseList(args)
		case "params":
			err = p.parseParams(args)
		case "dir-source":
			err = p.parseDirSource(args)
		case "r":
			var e model.StatusEntry
			e, err = parseRouter(args)
			if err == nil {
				p.entries = append(p.entries, e)
				cur = &p.entries[len(p.entries)-1]
			}
		case "s":
			if cur != nil {
				cur.Flags = make(map[string]bool, len(args))
				for _, f := range args {
					cur.Flags[f] = true
				}
			}
		case "v":
			if cur != nil {
				cur.Version = strings.TrimPrefix(strings.Join(args, " "), "Tor ")
			}
		case "w":
			if cur != nil {
				err = parseWeight(cur, args)
			}
		case "directory-footer":
			p.footer = true
			cur = nil
		case "directory-signature":
			// directory-signature [algorithm] identity signing-key-digest
			switch len(args) {
			case 2:
				p.sigIdentities = append(p.sigIdentities, strings.ToUpper(args[0]))
			case 3:
				p.sigIdentities = append(p.sigIdentities, strings.ToUpper(args[1]))
			default:
				err = fmt.Errorf("expected 2 or 3 arguments")
			}
		}

		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", n+1, kw, err)
		}
	}

	if inObject {
		return nil, fmt.Errorf("unterminated object: %w", ErrTruncated)
	}
	if !p.footer && len(p.sigIdentities) == 0 {
		return nil, fmt.Errorf("missing directory-footer: %w", ErrTruncated)
	}

	switch p.status {
	case "consensus":
		c, err := p.consensus()
		if err != nil {
			return nil, err
		}
		return c, nil
	case "vote":
		v, err := p.vote()
		if err != nil {
			return nil, err
		}
		return v, nil
	case "":
		return nil, fmt.Errorf("missing vote-status")
	default:
		return &model.Unrecognized{Type: "status-" + p.status}, nil
	}
}

func (p *parser) consensus() (*model.ConsensusDocument, error) {
	if p.validAfter.IsZero() {
		return nil, fmt.Errorf("consensus without valid-after")
	}
	doc := &model.ConsensusDocument{
		ValidAfter:                p.validAfter,
		ConsensusMethod:           p.method,
		RecommendedClientVersions: p.clientVers,
		RecommendedServerVersions: p.serverVers,
		Params:                    p.params,
		DirSources:                make(map[string]string, len(p.dirSources)),
		Signatures:                make(map[string]bool, len(p.sigIdentities)),
		StatusEntries:             p.entries,
	}
	byIdentity := make(map[string]string, len(p.dirSources))
	for _, ds := range p.dirSources {
		doc.DirSources[ds.nickname] = ds.identity
		byIdentity[ds.identity] = ds.nickname
	}
	for _, id := range p.sigIdentities {
		if nick, ok := byIdentity[id]; ok {
			doc.Signatures[nick] = true
		} else {
			doc.Signatures[id] = true
		}
	}
	return doc, nil
}

func (p *parser) vote() (*model.VoteDocument, error) {
	if len(p.dirSources) == 0 {
		return nil, fmt.Errorf("vote without dir-source")
	}
	if p.dirKeyExpires.IsZero() {
		return nil, fmt.Errorf("vote without dir-key-expires")
	}
	src := p.dirSources[0]
	return &model.VoteDocument{
		PublishingPeer:            src.nickname,
		Identity:                  src.identity,
		ValidAfter:                p.validAfter,
		DirKeyExpires:             p.dirKeyExpires,
		SupportedMethods:          p.methods,
		RecommendedClientVersions: p.clientVers,
		RecommendedServerVersions: p.serverVers,
		Params:                    p.params,
		StatusEntries:             p.entries,
	}, nil
}

func (p *parser) parseParams(args []string) error {
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return fmt.Errorf("malformed parameter %q", a)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", k, err)
		}
		p.params[k] = n
	}
	return nil
}

// dir-source nickname identity address IP dirport orport
func (p *parser) parseDirSource(args []string) error {
	if len(args) < 6 {
		return fmt.Errorf("expected 6 arguments, got %d", len(args))
	}
	port, err := strconv.Atoi(args[4])
	if err != nil {
		return fmt.Errorf("dirport: %w", err)
	}
	p.dirSources = append(p.dirSources, dirSource{
		nickname: args[0],
		identity: strings.ToUpper(args[1]),
		address:  args[3],
		dirPort:  port,
	})
	return nil
}

// r nickname identity [digest] date time address orport dirport
func parseRouter(args []string) (model.StatusEntry, error) {
	if len(args) != 8 && len(args) != 7 {
		return model.StatusEntry{}, fmt.Errorf("expected 7 or 8 arguments, got %d", len(args))
	}
	fp, err := DecodeIdentity(args[1])
	if err != nil {
		return model.StatusEntry{}, err
	}
	n := len(args)
	dirPort, err := strconv.Atoi(args[n-1])
	if err != nil {
		return model.StatusEntry{}, fmt.Errorf("dirport: %w", err)
	}
	return model.StatusEntry{
		Fingerprint: fp,
		Nickname:    args[0],
		Address:     args[n-3],
		DirPort:     dirPort,
	}, nil
}

func parseWeight(e *model.StatusEntry, args []string) error {
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("malformed weight %q", a)
		}
		if k != "Measured" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("measured: %w", err)
		}
		e.Measured = n
		e.HasMeasured = true
	}
	return nil
}

// DecodeIdentity converts a base64 relay identity (as found in "r" lines)
// to upper-case hex.
func DecodeIdentity(b64 string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(b64, "="))
	if err != nil {
		return "", fmt.Errorf("identity %q: %w", b64, err)
	}
	if len(raw) != 20 {
		return "", fmt.Errorf("identity %q: %d bytes", b64, len(raw))
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}

// EncodeIdentity is the inverse of DecodeIdentity.
func EncodeIdentity(fingerprint string) (string, error) {
	raw, err := hex.DecodeString(fingerprint)
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(raw), nil
}

func parseInt(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one argument")
	}
	return strconv.Atoi(args[0])
}

func parseTime(args []string) (time.Time, error) {
	if len(args) != 2 {
		return time.Time{}, fmt.Errorf("expected date and time")
	}
	return time.ParseInLocation(timeLayout, args[0]+" "+args[1], time.UTC)
}

func parseList(args []string) []string {
	if len(args) == 0 {
		return []string{}
	}
	out := []string{}
	for _, v := range strings.Split(strings.Join(args, ""), ",") {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
