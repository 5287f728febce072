package upgrade

// Data migration hooks are registered here.
// Add a hook when a schema migration needs a Go-based data transformation.
//
// Example:
//
//	func init() {
//		RegisterDataHook(2, "002_backfill_intent_fields", func(ctx context.Context, db *sql.DB) error {
//			// rewrite intent field documents after migration 0002 is applied
//			return nil
//		})
//	}
