package cmdb

// Version is the release of the engine and the cmdb command.
const Version = "0.1.0"
