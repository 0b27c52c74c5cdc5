package domain

// LocationType represents the kind of service point being observed.
type LocationType string

const (
	LocationFrontDesk    LocationType = "front_desk"
	LocationRestaurant   LocationType = "restaurant"
	LocationLobby        LocationType = "lobby"
	LocationHousekeeping LocationType = "housekeeping"
	LocationConcierge    LocationType = "concierge"
	LocationValet        LocationType = "valet"
	LocationSpa          LocationType = "spa"
	LocationGym          LocationType = "gym"
)

// AllLocationTypes lists every known location type in a stable order.
var AllLocationTypes = []LocationType{
	LocationFrontDesk,
	LocationRestaurant,
	LocationLobby,
	LocationHousekeeping,
	LocationConcierge,
	LocationValet,
	LocationSpa,
	LocationGym,
}

// String returns the string representation of LocationType.
func (t LocationType) String() string {
	return string(t)
}

// IsValid checks if the location type is a known value.
func (t LocationType) IsValid() bool {
	for _, known := range AllLocationTypes {
		if t == known {
			return true
		}
	}
	return false
}
