package geom

// Direction is a compass facing, used for sign rotation of localities.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

// Yaw returns the facing in game yaw degrees.
func (d Direction) Yaw() int {
	switch d {
	case North:
		return 180
	case East:
		return -90
	case West:
		return 90
	default:
		return 0
	}
}

func (d Direction) String() string {
	switch d {
	case North:
		return "NORTH"
	case East:
		return "EAST"
	case South:
		return "SOUTH"
	case West:
		return "WEST"
	default:
		return "UNKNOWN"
	}
}
