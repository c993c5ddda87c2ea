package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruriclub/supportdesk/internal/auth"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/store"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// DemoUsers are the accounts created by SeedDemo. Employee ids match the
// default assignable set.
var DemoUsers = []store.User{
	{ID: 1, FullName: "Alice Reyes", Email: "alice@ruri.club", Role: model.RoleEmployee},
	{ID: 2, FullName: "Ben Cruz", Email: "ben@ruri.club", Role: model.RoleEmployee},
	{ID: 3, FullName: "Ruri Admin", Email: "admin@ruri.club", Role: model.RoleAdmin},
	{ID: 4, FullName: "Maria Lopez", Email: "maria@example.com", Role: model.RoleClient},
	{ID: 5, FullName: "Jon Santos", Email: "jon@example.com", Role: model.RoleClient},
	{ID: 13, FullName: "Carla Dizon", Email: "carla@ruri.club", Role: model.RoleEmployee},
	{ID: 14, FullName: "Dan Mercado", Email: "dan@ruri.club", Role: model.RoleEmployee},
	{ID: 15, FullName: "Ella Tan", Email: "ella@ruri.club", Role: model.RoleEmployee},
}

// SeedDemo creates the demo accounts that do not exist yet and returns how
// many were added.
func SeedDemo(ctx context.Context, st store.Store) (int, error) {
	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return 0, fmt.Errorf("failed to hash demo password: %w", err)
	}

	added := 0
	for _, u := range DemoUsers {
		if _, err := st.UserByEmail(ctx, u.Email); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return added, err
		}
		u.Password = hash
		if err := st.CreateUser(ctx, &u); err != nil {
			return added, fmt.Errorf("failed to seed %s: %w", u.Email, err)
		}
		added++
	}
	return added, nil
}

// EmployeeRatings returns the ratings report shown on the admin dashboard.
func EmployeeRatings() []model.EmployeeRating {
	return []model.EmployeeRating{
		{Name: "Alice Reyes", Rating: 4.8, Reviews: 35},
		{Name: "Ben Cruz", Rating: 4.6, Reviews: 29},
		{Name: "Ruri AI", Rating: 4.9, Reviews: 50},
	}
}
