// Package ringhook keeps a pool of worker nodes discovered over a
// publish/subscribe `Bus` and routes work to them.
//
// ## How it works
//
// A `RingNode` is the advertising side. Once its bus is ready, it runs its
// init strategy, computes its configuration (an address probed from the
// local interfaces by default) and then:
//
// * broadcasts a `<family>-ring::new` announcement carrying its description,
// * answers every `<family>-ring::find` request with the same description.
//
// A `RingClient` is the consuming side. Once its bus is ready, it broadcasts a
// `<family>-ring::find` request, folds every reply into its pool, keeps
// listening for `new` announcements and drops nodes when the bus reports them
// disconnected.
//
// Callers then use `RingClient.GetNode`:
//
// * with an empty key, nodes are picked in round robin,
// * with a key, the node is picked by consistent hashing, so that a key keeps
// landing on the same node while membership is stable, and only the keys of a
// departing node move elsewhere.
//
// ## Transports
//
// Two `Bus` implementations are provided:
//
// * `Hub`, an in-process bus, handy for tests and single-process setups.
// * `fabric.Fabric`, a cluster bus on top of [`hashicorp/serf`][dep-serf].
//
// ## Guarantees
//
// Membership is eventually consistent and best-effort. There is no consensus
// and no completion signal for discovery: right after start, `GetNode` MAY
// return no node. Callers MUST be ready to handle it.
//
// [dep-serf]: https://pkg.go.dev/github.com/hashicorp/serf/serf
package ringhook
