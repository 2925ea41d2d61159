/*
Package entity keeps versioned records on top of a flat object store.

An entity is a typed record (an event, a venue, a resource, ...) belonging to
either one organization or to no organization, in which case it is global.
Each entity has three kinds of object in the store:

 1. A stub, written once at creation, binding the entity id to its
    organization and type. The stub is how an id is turned into a path.
 2. A numbered snapshot for every version. Snapshots are full copies of the
    entity and are never changed or deleted, except by a super delete.
 3. A latest pointer naming the current version, status and visibility.
    The pointer is the only mutable object and is the sole source of truth
    for which version is current.

Every accepted change writes the snapshot for version n+1 first and then
replaces the pointer. A crash between the two leaves the old pointer in
place and an orphan snapshot, never a pointer to a snapshot which does not
exist. There is no compare-and-swap, so two updates racing on the same
entity both write version n+1 and the last pointer write wins. An update
may pass the version it expects to replace, and will then be rejected if the
pointer has moved, but this is only checked when the pointer is read.

Entity ids are seven lowercase alphanumeric characters. Versions start at 1
and are contiguous.

Status changes go through Transition, which implements the approval
workflow:

	draft --submitForApproval--> pending --approve--> published
	pending --reject--> draft
	draft, pending, published --archive--> archived
	any --superDelete--> (purged)

Only drafts may be edited.

Entity types are kept under entity-types/ and are not versioned. They list
the fields an entity may carry and the kind of value each holds.

The data retrieval paths of a Store are safe to call from multiple
goroutines.
*/
package entity
