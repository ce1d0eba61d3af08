package build_info

// Set during build with -ldflags "-X github.com/donation-platform/ledger-worker/src/utils/build_info.Version=..."
var Version = "dev"
