package models

// User is the identity shape returned by the external directory.
// The service never owns user records; it only references them by ID.
type User struct {
	ID       string
	Username string
}

// Organization is a directory-managed group of users. Apportion presets are
// scoped to organizations.
type Organization struct {
	ID   string
	Name string
}

// Account holds per-user settings local to this service: the dormitory
// building binding and optional campus-portal credentials used by the
// electricity collector.
type Account struct {
	UID            string
	BuildingID     string
	PortalID       string
	PortalPassword string
}
