/*
Package cluster holds the in-memory registry of managed ZooKeeper-ensemble
servers and the snapshot codec that persists it.

The Cluster is an ordered, id-unique collection of Servers. Each Server owns
its launch configuration, placement constraints, host-affinity tracker and
failover policy; none of these exist outside their Server. The whole graph
serializes to a single JSON document, so a restarted scheduler reloads the
exact fleet it was supervising:

	{
	  "servers": [
	    {
	      "id": "zk-0",
	      "state": "running",
	      "config": {"cpus": 0.5, "mem": 512, "ports": "31000..31100"},
	      "constraints": {"hostname": ["unique"]},
	      "stickiness": {"period": 600000000000, "hostname": "slave0"},
	      "failover": {"failures": 0, "delay": 1000000000, "maxDelay": 60000000000}
	    }
	  ]
	}

The package is deliberately lock-free: the scheduler engine serializes all
access under its own mutex.
*/
package cluster
