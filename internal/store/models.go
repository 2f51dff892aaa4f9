package store

import "time"

// User is a Telegram account that activated the bot with /start.
// The id doubles as the Telegram user id; ChatID is where reminders go.
type User struct {
	ID        int64
	ChatID    int64
	Username  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Pet struct {
	ID          int64
	UserID      int64
	Name        string
	Species     string // "dog", "cat", ...
	Breed       string
	BirthDate   *time.Time // date-only
	PhotoFileID string
	CreatedAt   time.Time
}

type Vaccine struct {
	ID               int64
	PetID            int64
	Name             string
	AdministeredAt   *time.Time // date-only, nil = not yet given
	DueAt            *time.Time // date-only, nil = no reminder
	Notes            string
	Recurring        bool
	RecurrenceMonths int
}

// VaccineWithPet joins the owning pet's name and user for rendering
// notifications and digests without a second query.
type VaccineWithPet struct {
	Vaccine
	PetName string
	UserID  int64
}

// ReminderSettings is a user's reminder preference. LeadDays is sorted
// descending (farthest reminder first).
type ReminderSettings struct {
	UserID   int64
	LeadDays []int
	Hour     int
	Minute   int
}

// Alarm is one registered reminder timer, persisted so the in-process
// timers can be rebuilt after a restart and cancelled without guessing names.
type Alarm struct {
	Name      string // "vaccine:<id>:lead:<days>"
	VaccineID int64
	UserID    int64
	LeadDays  int
	FireAt    time.Time
}

// DigestRef locates a user's editable digest message.
type DigestRef struct {
	UserID    int64
	ChatID    int64
	MessageID int
}
