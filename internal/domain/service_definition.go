package domain

// ServiceDefinition is a read-only catalog entry describing a request type.
type ServiceDefinition struct {
	HotelID           string `json:"hotel_id"`
	Key               string `json:"key"`
	Label             string `json:"label"`
	Department        string `json:"department"`
	DefaultSLAMinutes int    `json:"default_sla_minutes"`
	Active            bool   `json:"active"`
}
