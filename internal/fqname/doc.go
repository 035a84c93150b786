/*
Package fqname provides a structured, type-safe representation for
fully-qualified type names, based on the canonical dot-separated format
`pkg.Message.Nested`.

A name is globally unique within a process and is the key under which
descriptors, backend claims, and constructed types are tracked. This package
enforces the identifier schema and centralizes all formatting and parsing
logic.
*/
package fqname
