// Package hclgraph reads and writes graph documents as HCL files.
//
// A file holds one named block per node and one block per link:
//
//	node "ramp" {
//	  type      = "source.Ramp"
//	  position  = [0, 0]
//	  constants = { length = 100 }
//	  external  = ["scale"]
//	}
//
//	link {
//	  from = "ramp.signal"
//	  to   = "mean.signal"
//	}
//
// Node order in the file is node order in the document; link order is kept
// per output port.
package hclgraph
