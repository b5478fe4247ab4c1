package health

import (
	"context"
	"database/sql"
	"time"
)

// DB returns a checker that pings the database with a short deadline.
func DB(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		return Status{Healthy: true}
	}
}

// Static returns a checker whose result never changes. Used for
// configuration facts like which payment gateway is active.
func Static(healthy bool, detail string) Checker {
	return func(context.Context) Status {
		return Status{Healthy: healthy, Detail: detail}
	}
}
