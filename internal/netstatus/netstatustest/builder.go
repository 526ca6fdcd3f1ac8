// Package netstatustest renders consensus and vote documents for tests.
package netstatustest

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
)

const timeLayout = "2006-01-02 15:04:05"

// Identity derives a stable fake fingerprint from a nickname.
func Identity(name string) string {
	sum := sha1.Sum([]byte(name))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// DirSource is one "dir-source" entry.
type DirSource struct {
	Nickname string
	Identity string
	Address  string
	DirPort  int
}

// Relay is one status entry.
type Relay struct {
	Nickname    string
	Fingerprint string
	Address     string
	DirPort     int
	Flags       []string
	Version     string
	// Measured is written as Measured= when positive.
	Measured int64
}

// Consensus describes a consensus document.
type Consensus struct {
	ValidAfter     time.Time
	Method         int
	ClientVersions []string
	ServerVersions []string
	Params         map[string]int
	DirSources     []DirSource
	// Signers lists the identities that signed.
	Signers []string
	Relays  []Relay
}

// Vote describes a vote document.
type Vote struct {
	Source         DirSource
	ValidAfter     time.Time
	DirKeyExpires  time.Time
	Methods        []int
	ClientVersions []string
	ServerVersions []string
	Params         map[string]int
	Relays         []Relay
}

// Bytes renders the consensus.
func (c Consensus) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, "network-status-version 3")
	fmt.Fprintln(&b, "vote-status consensus")
	fmt.Fprintf(&b, "consensus-method %d\n", c.Method)
	writeHeader(&b, c.ValidAfter, c.ClientVersions, c.ServerVersions, c.Params)
	for _, ds := range c.DirSources {
		writeDirSource(&b, ds)
		fmt.Fprintf(&b, "vote-digest %s\n", Identity("digest-"+ds.Nickname))
	}
	writeRelays(&b, c.Relays)
	fmt.Fprintln(&b, "directory-footer")
	fmt.Fprintln(&b, "bandwidth-weights Wbd=0 Wbe=0")
	for _, id := range c.Signers {
		fmt.Fprintf(&b, "directory-signature sha256 %s %s\n", id, Identity("signing-"+id))
		writeObject(&b, "SIGNATURE")
	}
	return b.Bytes()
}

// Bytes renders the vote.
func (v Vote) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, "network-status-version 3")
	fmt.Fprintln(&b, "vote-status vote")
	methods := make([]string, len(v.Methods))
	for i, m := range v.Methods {
		methods[i] = fmt.Sprint(m)
	}
	fmt.Fprintf(&b, "consensus-methods %s\n", strings.Join(methods, " "))
	fmt.Fprintf(&b, "published %s\n", v.ValidAfter.Add(-5*time.Minute).UTC().Format(timeLayout))
	writeHeader(&b, v.ValidAfter, v.ClientVersions, v.ServerVersions, v.Params)
	writeDirSource(&b, v.Source)
	fmt.Fprintln(&b, "dir-key-certificate-version 3")
	fmt.Fprintf(&b, "fingerprint %s\n", v.Source.Identity)
	fmt.Fprintf(&b, "dir-key-published %s\n", v.DirKeyExpires.AddDate(-1, 0, 0).UTC().Format(timeLayout))
	fmt.Fprintf(&b, "dir-key-expires %s\n", v.DirKeyExpires.UTC().Format(timeLayout))
	fmt.Fprintln(&b, "dir-identity-key")
	writeObject(&b, "RSA PUBLIC KEY")
	fmt.Fprintln(&b, "dir-key-certification")
	writeObject(&b, "SIGNATURE")
	writeRelays(&b, v.Relays)
	fmt.Fprintln(&b, "directory-footer")
	fmt.Fprintf(&b, "directory-signature %s %s\n", v.Source.Identity, Identity("signing-"+v.Source.Identity))
	writeObject(&b, "SIGNATURE")
	return b.Bytes()
}

// Compress returns the zlib encoding of data, as served for ".z" resources.
func Compress(data []byte) []byte {
	var b bytes.Buffer
	w := zlib.NewWriter(&b)
	_, _ = w.Write(data)
	_ = w.Close()
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, validAfter time.Time, client, server []string, params map[string]int) {
	fmt.Fprintf(b, "valid-after %s\n", validAfter.UTC().Format(timeLayout))
	fmt.Fprintf(b, "fresh-until %s\n", validAfter.Add(time.Hour).UTC().Format(timeLayout))
	fmt.Fprintf(b, "valid-until %s\n", validAfter.Add(3*time.Hour).UTC().Format(timeLayout))
	fmt.Fprintln(b, "voting-delay 300 300")
	if client != nil {
		fmt.Fprintf(b, "client-versions %s\n", strings.Join(client, ","))
	}
	if server != nil {
		fmt.Fprintf(b, "server-versions %s\n", strings.Join(server, ","))
	}
	fmt.Fprintln(b, "known-flags Authority BadExit Exit Fast Guard HSDir Running Stable V2Dir Valid")
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, params[k])
		}
		fmt.Fprintf(b, "params %s\n", strings.Join(parts, " "))
	}
}

func writeDirSource(b *bytes.Buffer, ds DirSource) {
	fmt.Fprintf(b, "dir-source %s %s %s %s %d %d\n", ds.Nickname, ds.Identity, ds.Address, ds.Address, ds.DirPort, ds.DirPort+1)
	fmt.Fprintf(b, "contact %s operators\n", ds.Nickname)
}

func writeRelays(b *bytes.Buffer, relays []Relay) {
	for _, r := range relays {
		raw, _ := hex.DecodeString(r.Fingerprint)
		id := base64.RawStdEncoding.EncodeToString(raw)
		fmt.Fprintf(b, "r %s %s %s 2024-01-01 00:00:00 %s 9001 %d\n", r.Nickname, id, id, r.Address, r.DirPort)
		fmt.Fprintf(b, "s %s\n", strings.Join(r.Flags, " "))
		if r.Version != "" {
			fmt.Fprintf(b, "v Tor %s\n", r.Version)
		}
		if r.Measured > 0 {
			fmt.Fprintf(b, "w Bandwidth=%d Measured=%d\n", r.Measured, r.Measured)
		} else {
			fmt.Fprintln(b, "w Bandwidth=20 Unmeasured=1")
		}
	}
}

func writeObject(b *bytes.Buffer, kind string) {
	fmt.Fprintf(b, "-----BEGIN %s-----\n", kind)
	fmt.Fprintln(b, base64.StdEncoding.EncodeToString([]byte("not a real "+strings.ToLower(kind))))
	fmt.Fprintf(b, "-----END %s-----\n", kind)
}
