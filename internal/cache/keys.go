package cache

const (
	KeyStaticTrains = "travel:trains"
	KeyStations     = "travel:stations"
)
