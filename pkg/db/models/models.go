package models

// All lists every persisted model in dependency order. SQLite dev mode and
// repository tests auto-migrate from it; Postgres uses the goose migrations.
func All() []any {
	return []any{
		&Campaign{},
		&DiscountBracket{},
		&Pledge{},
		&Invoice{},
		&Order{},
		&Notification{},
		&OutboxEvent{},
	}
}
