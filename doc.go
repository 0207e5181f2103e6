// Package statebus is a reactive single-value state container.
//
// A Container holds one immutable snapshot of application state. Every change
// goes through a mutation that names itself with an Action, passes the single
// Middleware slot, is stored, and is then broadcast to subscribers:
//
//	todos := statebus.New(map[string]any{"items": []any{}}, statebus.WithName("todos"))
//	todos.Update(map[string]any{"filter": "open"})
//	todos.Actions().Value().Type // "[todos] UPDATE"
//
// # Paths
//
// Nested values are addressed with dot paths. Writes keep every key outside
// the written path:
//
//	todos.SetAt("user.name", "ada")
//	todos.Get("user.name") // "ada"
//	todos.At("user").Update(map[string]any{"role": "admin"})
//
// # Streams
//
// GetStream emits the current value immediately and then every distinct
// change until Close. Deliveries happen outside container locks, in commit
// order, so a subscriber may mutate the container it watches:
//
//	sub := todos.GetStream("filter").Subscribe(func(v any) { fmt.Println(v) })
//	defer sub.Unsubscribe()
//
// # Async bindings
//
// BindAsync attaches a Deferred or Stream source to a path. At most one
// binding runs per path; rebinding cancels the previous one first:
//
//	b, _ := todos.BindAsync(ctx, "remote", statebus.FromChan(updates))
//	<-b.Done()
//
// # Middleware
//
// UseMiddleware installs one function that may rewrite or reject every
// candidate value. The slot is deliberately single: installing a middleware
// replaces the previous one rather than chaining onto it.
package statebus
