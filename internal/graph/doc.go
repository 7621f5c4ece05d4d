// Package graph stores the proximity graph in two forms.
//
// Lists hold one mutable edge slice per node and absorb every insert, link
// and removal. CSR is the compiled, read-only form searches traverse: one
// offsets array and one sorted neighbor array.
//
// Graph ties the two together through an explicit State: Building while
// lists carry changes the CSR does not reflect, Compiled once Finalize has
// caught up. Finalize compiles into fresh buffers and swaps the active CSR
// atomically, so searches never observe a partially built snapshot.
package graph
