package analysis

// Scam/hype terms matched case-insensitively as substrings of bios and post
// text. Distinct matches count individually.
var suspiciousKeywords = []string{
	"guaranteed",
	"risk-free",
	"get rich",
	"easy money",
	"moonshot",
	"to the moon",
	"100x",
	"guaranteed returns",
	"no risk",
	"quick profit",
	"instant wealth",
	"diamond hands",
	"hodl",
	"dyor",
}

// Terms weakly indicating a professional or verifiable identity.
var trustedKeywords = []string{
	"developer",
	"engineer",
	"founder",
	"ceo",
	"cto",
	"researcher",
	"university",
	"phd",
	"professor",
	"verified",
	"official",
}
