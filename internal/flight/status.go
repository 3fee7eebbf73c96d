package flight

// Status is an authoritative flight status code. The values are fixed wire
// codes shared with external reporters; Unknown is the only pre-consensus
// value.
type Status uint8

const (
	StatusUnknown       Status = 0
	StatusOnTime        Status = 10
	StatusLateAirline   Status = 20
	StatusLateWeather   Status = 30
	StatusLateTechnical Status = 40
	StatusLateOther     Status = 50
)

// Valid reports whether s is one of the defined status codes.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnTime, StatusLateAirline, StatusLateWeather,
		StatusLateTechnical, StatusLateOther:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOnTime:
		return "on-time"
	case StatusLateAirline:
		return "late-airline"
	case StatusLateWeather:
		return "late-weather"
	case StatusLateTechnical:
		return "late-technical"
	case StatusLateOther:
		return "late-other"
	default:
		return "invalid"
	}
}
