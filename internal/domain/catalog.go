package domain

// Category groups products.
type Category struct {
	Record
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewCategory(name, description string) (*Category, error) {
	c := &Category{Name: name, Description: description}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Category) Validate() error {
	if c.Name == "" {
		return NewInvalidArgument("category name is required")
	}
	return nil
}

func (c *Category) Clone() *Category {
	cp := *c
	return &cp
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Supplier provides products. Location is optional.
type Supplier struct {
	Record
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	Location      *GeoPoint `json:"location,omitempty"`
}

func NewSupplier(name, contactPerson, email, phone, address string, location *GeoPoint) (*Supplier, error) {
	s := &Supplier{
		Name:          name,
		ContactPerson: contactPerson,
		Email:         email,
		Phone:         phone,
		Address:       address,
		Location:      location,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Supplier) Validate() error {
	if s.Name == "" {
		return NewInvalidArgument("supplier name is required")
	}
	if l := s.Location; l != nil {
		if l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
			return NewInvalidArgument("location out of range: %f,%f", l.Lat, l.Lng)
		}
	}
	return nil
}

func (s *Supplier) Clone() *Supplier {
	cp := *s
	if s.Location != nil {
		loc := *s.Location
		cp.Location = &loc
	}
	return &cp
}
