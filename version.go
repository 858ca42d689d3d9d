package devtools

// Version is the devtool release, checked against the manifest's "requires"
// field at startup.
const Version = "v0.4.2"
