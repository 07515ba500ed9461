/*
Package storage persists the cluster as one serialized snapshot behind a
small Store interface.

Three interchangeable backends are selected by the storage spec's scheme at
startup:

	file:/var/lib/zkfleet/cluster.json   plain file, rewritten on save
	zk:zk1:2181,zk2:2181/zkfleet         single ZooKeeper node, fresh session per call
	bolt:/var/lib/zkfleet/zkfleet.db     BoltDB, one bucket and one key

Save replaces the previous snapshot; Load reports absence with a false
return and treats present-but-malformed content as a hard error, since a
corrupt snapshot must stop the scheduler rather than silently start it
empty.
*/
package storage
