package authority

import "dirdoctor/internal/model"

// Default returns the built-in authority table.
func Default() Registry {
	return MustNew([]model.Peer{
		{Nickname: "bastet", Host: "204.13.164.118", DirPort: 80, Identity: "24E2F139121D4394C54B5BCC368B3B411857C413", BandwidthAuthority: true},
		{Nickname: "dannenberg", Host: "193.23.244.244", DirPort: 80, Identity: "7BE683E65D48141321C5ED92F075C55364AC7123"},
		{Nickname: "dizum", Host: "45.66.33.45", DirPort: 80, Identity: "7EA6EAD6FD83083C538F44038BBFA077587DD755"},
		{Nickname: "gabelmoo", Host: "131.188.40.189", DirPort: 80, Identity: "F2044413DAC2E02E3D6BCF4735A19BCA1DE97281", BandwidthAuthority: true},
		{Nickname: "longclaw", Host: "199.58.81.140", DirPort: 80, Identity: "74A910646BCEEFBCD2E874FC1DC997430F968145", BandwidthAuthority: true},
		{Nickname: "maatuska", Host: "171.25.193.9", DirPort: 443, Identity: "BD6A829255CB08E66FBE7D3748363586E46B3810", BandwidthAuthority: true},
		{Nickname: "moria1", Host: "128.31.0.39", DirPort: 9131, Identity: "9695DFC35FFEB861329B9F1AB04C46397020CE31", BandwidthAuthority: true},
		{Nickname: "tor26", Host: "86.59.21.38", DirPort: 80, Identity: "847B1F850344D7876491A54892F904934E4EB85D"},
	})
}
