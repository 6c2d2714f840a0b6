package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSupplier Role = "supplier"
	RoleBuyer    Role = "buyer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupplier, RoleBuyer:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      Role
	Status    UserStatus
	CreatedAt time.Time
}

// Actor is the authenticated caller of a request, resolved by the access gate.
// The zero value means no caller.
type Actor struct {
	UserID    uuid.UUID
	Role      Role
	Status    UserStatus
	SessionID string
}

func (a Actor) Authenticated() bool { return a.UserID != uuid.Nil }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Product struct {
	ID          uuid.UUID
	SupplierID  uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	ImagePath   string
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

func (p *Product) Deleted() bool { return p.DeletedAt != nil }

type Order struct {
	ID         uuid.UUID
	BuyerID    uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	TotalPrice decimal.Decimal
	Status     OrderStatus
	OrderDate  time.Time
	UpdatedAt  time.Time

	// SupplierID is the owner of the ordered product at read time.
	// uuid.Nil when the product has been hard-deleted.
	SupplierID uuid.UUID
}

// Cart maps product id to requested quantity for one buyer session.
type Cart struct {
	SessionID string
	Items     map[uuid.UUID]int
}
