// Package conf reads the tool configuration of topo.
//
// Values are layered: the embedded defaults, the main configuration file,
// the drop-in files in lexical order, TOPO_* environment variables and
// finally command line flags. A layer only overrides the keys it sets.
package conf
