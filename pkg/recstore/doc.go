// Package recstore persists Go records in SQLite without hand-written
// schemas.
//
// Tables are created on first write and grow a column whenever a record
// carries a field the table has not seen. Columns are never dropped or
// retyped.
//
// Typical usage:
//
//	db, _ := recstore.Open("app.db")
//	defer db.Close()
//
//	people, _ := recstore.TableOf[Person](db, "people")
//	people.Write(ctx, Person{ID: 1, FirstName: "Jane"})
//	found, _ := people.Read(ctx, recstore.Where(recstore.Eq("firstName", "Jane")))
//
// A DB owns one SQLite connection and is not safe for concurrent use.
// Table handles refer to their DB weakly and fail with ErrClosed once it is
// closed or collected.
package recstore
