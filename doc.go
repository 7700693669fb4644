/*
Package ormkit provides a metadata driven mapping layer over database/sql.

Models are plain structs. The meta package derives a model definition from
their orm struct tags, the dialect package renders SQL and converts values
for postgres, sqlite and mysql, and this package runs every command through
one pipeline:
  - Transactions carried in the context, with savepoints
  - Per-command timeouts and an optional write lock
  - Generic query helpers (Scalar, List, Single, Column, Dictionary, Lazy)
  - Async futures and parallel fan-out
  - Results filters that answer commands without reaching the database
  - Configurable observability (logging, metrics, tracing)
  - Health check utilities

# Basic Usage

	cfg := ormkit.DefaultConfig("postgres", os.Getenv("DATABASE_URL"))
	cfg.Logger = slog.Default()
	cfg.LogSlowQueries = 100 * time.Millisecond

	db, err := ormkit.New(cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer db.Close()

# Models

	type User struct {
	    meta.Table `orm:"table:users"`
	    ormkit.BaseModel
	    Email string `orm:"email,notnull,unique"`
	}

	err := ormkit.CreateTable[User](ctx, db, true)

# Generic CRUD

	// Find by ID
	user, err := ormkit.FindByID[User](ctx, db, "uuid")

	// Find with a condition
	users, err := ormkit.FindAll[User](ctx, db, "email LIKE @pattern", ormkit.Params{"pattern": "%@example.com"})

	// Create
	err := ormkit.Insert(ctx, db, &user)

	// Update
	err := ormkit.Update(ctx, db, &user)

	// Delete
	err := ormkit.Delete(ctx, db, &user)

# Raw commands

	n, err := db.Exec(ctx, "DELETE FROM sessions WHERE expires_at < $1", time.Now())
	total, err := ormkit.Scalar[int64](ctx, db, "SELECT COUNT(*) FROM users")
	emails, err := ormkit.Column[string](ctx, db, "SELECT email FROM users")

# Transactions

Callback-based (auto commit/rollback). Commands issued with the callback's
context run inside the transaction:

	err := db.Transaction(ctx, func(ctx context.Context, tx *ormkit.Tx) error {
	    if err := ormkit.Insert(ctx, db, &user); err != nil {
	        return err // rollback
	    }
	    return nil // commit
	})

Manual control:

	ctx, tx, err := db.Begin(ctx)
	if err != nil {
	    return err
	}
	defer tx.Rollback()

	// ... operations ...

	return tx.Commit()

Nested transactions (savepoints):

	err := db.Transaction(ctx, func(ctx context.Context, tx *ormkit.Tx) error {
	    ormkit.Insert(ctx, tx, &outer)

	    err := tx.Transaction(ctx, func(ctx context.Context, tx *ormkit.Tx) error {
	        return errors.New("fail") // only rolls back inner
	    })

	    return nil // outer commits
	})

# Results filters

	ctx, scope := ormkit.UseResultsFilter(ctx, &ormkit.CannedResults{
	    List: []User{{Email: "a@example.com"}},
	})
	defer scope.Close()

	users, err := ormkit.List[User](ctx, db, "SELECT * FROM users") // no database access

# Error Handling

Driver errors are returned as they are. Classify turns them into rich errors:

	if err := ormkit.Insert(ctx, db, &user); err != nil {
	    if ormkit.IsDuplicate(err) {
	        // Handle duplicate key
	    }

	    var dbErr *ormkit.Error
	    if errors.As(ormkit.Classify(err, "Insert"), &dbErr) {
	        fmt.Println(dbErr.Code)       // DUPLICATE
	        fmt.Println(dbErr.Constraint) // users_email_key
	    }
	}
*/
package ormkit
