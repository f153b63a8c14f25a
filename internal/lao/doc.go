// Package lao implements lazy array operation trees.
//
// A tree is built from leaves (Memory, Generated, Source) and combinators
// (View, Unary, Binary, Scalar, Concat). Building a tree never reads data:
// only RequestData does, and it pulls exactly the elements asked for from the
// leaves. Index collapses chains of selections so that any number of nested
// views reach the leaf as a single request.
//
// Trees hold their operands by exclusive ownership and keep no parent
// pointers, so Encode can ship a tree to another worker; Source leaves travel
// as locators and reopen there on first use.
package lao
