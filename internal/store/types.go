package store

import "github.com/lib/pq"

// pqStringArray aliases pq.StringArray so model field tags stay terse;
// it implements sql.Scanner/driver.Valuer against Postgres text[].
type pqStringArray = pq.StringArray
