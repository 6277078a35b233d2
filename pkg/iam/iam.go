// Package iam wires the aggregate packages into one backend: command
// registrations on one side, projection handlers on the other.
package iam

import (
	"time"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/iam/app"
	"github.com/identra/identra/pkg/iam/authrequest"
	"github.com/identra/identra/pkg/iam/instance"
	"github.com/identra/identra/pkg/iam/member"
	"github.com/identra/identra/pkg/iam/org"
	"github.com/identra/identra/pkg/iam/project"
	"github.com/identra/identra/pkg/iam/session"
	"github.com/identra/identra/pkg/iam/user"
	"github.com/identra/identra/pkg/idgen"
	"github.com/identra/identra/pkg/projection"
)

// Config collects the knobs the aggregate packages take.
type Config struct {
	// IDs generates client IDs for apps. Required.
	IDs *idgen.Snowflake

	// BcryptCost for user passwords, crypto.DefaultCost when zero.
	BcryptCost int

	// Usernames pre-checks username availability on user creation.
	// Optional, usually the users query repo.
	Usernames user.UsernameChecker

	// Users enforces the users quota on creation. Optional, usually the
	// users query repo.
	Users user.Counter

	// Now is the session clock, time.Now when nil.
	Now func() time.Time
}

// RegisterAll adds every aggregate's command handlers to the bus.
func RegisterAll(bus *command.Bus, cfg Config) {
	instance.Register(bus)
	org.Register(bus)
	project.Register(bus)
	app.Register(bus, app.Config{IDs: cfg.IDs})
	user.Register(bus, user.Config{
		BcryptCost: cfg.BcryptCost,
		Usernames:  cfg.Usernames,
		Users:      cfg.Users,
	})
	session.Register(bus, session.Config{Now: cfg.Now})
	authrequest.Register(bus)
}

// Projections returns every read model handler, ready to hand to a
// projection manager.
func Projections(db *database.DB) []projection.Handler {
	return []projection.Handler{
		instance.NewProjection(db),
		org.NewProjection(db),
		project.NewProjection(db),
		app.NewProjection(db),
		user.NewProjection(db),
		user.NewMetadataProjection(db),
		user.NewAddressProjection(db),
		session.NewProjection(db),
		authrequest.NewProjection(db),
		member.NewProjection(db),
	}
}
