package models

import "time"

// Student is the profile record served by the upstream API.
type Student struct {
	ID           string `json:"_id"`
	RollNo       string `json:"rollNo"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	HostelID     string `json:"hostelId"`
	RoomNo       string `json:"roomNo"`
	Branch       string `json:"branch"`
	Year         string `json:"year"`
	IsRegistered bool   `json:"isRegistered"`
}

// Incharge is a hostel staff directory entry.
type Incharge struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	HostelID string `json:"hostelId"`
}

// Roomie is a roommate directory entry.
type Roomie struct {
	ID     string `json:"_id"`
	RollNo string `json:"rollNo"`
	Name   string `json:"name"`
	RoomNo string `json:"roomNo"`
	Phone  string `json:"phone"`
}

// GeoFix is a single device-reported location sample. Once acquired it is
// immutable for the rest of a capture session.
type GeoFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AcquiredAt time.Time `json:"acquiredAt"`
}
