package model

// Tenant is the public view of a barbershop used by the booking flow.
type Tenant struct {
	ID              string
	Slug            string
	Name            string
	Phone           string
	Address         string
	Status          string
	Timezone        string
	PixKey          string
	PixKeyType      string
	PixMerchantName string
	PixMerchantCity string
	PixCopyPaste    string
	LogoKey         string
}

func (t Tenant) Active() bool { return t.Status == "active" }

func (t Tenant) PixEnabled() bool {
	return t.PixCopyPaste != "" || t.PixKey != ""
}

type Service struct {
	ID              string
	TenantID        string
	Name            string
	Description     string
	DurationMinutes int
	PriceCents      int64
	IsActive        bool
}

type Staff struct {
	ID        string
	TenantID  string
	Name      string
	Specialty string
	IsActive  bool
}

// BusinessHours of one weekday (0 = Sunday). Minutes count from local midnight.
type BusinessHours struct {
	Weekday     int
	IsOpen      bool
	OpenMinute  int
	CloseMinute int
}
