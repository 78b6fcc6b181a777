package version

// ClientVersion - specifies the relay client version
var ClientVersion = "0.2.3"

// SessionMessageVersion - specifies the session message envelope version
var SessionMessageVersion = "0.1.0"

// GitCommit - specifies the git commit, passed through ldflags
var GitCommit = ""
