/*
Package tabledb implements an embedded store of schema-typed key-value tables.

A Registry manages the tables stored under one root directory, one
subdirectory per table. A Table has a fixed Schema (an ordered list of column
types) and maps string keys to Rows of that schema. All writes go through a
Tx: puts and removes are staged in the Tx, visible only to it, and become
visible to everyone on Commit. Rollback discards them. A Factory owns
several registries and closes them together.

# Isolation

A Tx sees the committed rows of its table overlaid with its own staged
writes. Two transactions may stage conflicting writes to the same key; the
one that commits last wins. Commits of one table are serialized and each one
persists the complete set of committed rows.

# Files

Each table directory holds:

**signature.tsv**: the schema, one type token per column followed by a space
(int, long, byte, float, double, String, boolean).

**table.dat**: the committed rows in the container format, see below.
Tables created with BoltStorage keep them in **table.bolt** instead, in
bucket "rows".

**changes-*.log**: optional change log segments, one record per commit,
see package changelog.

## Container format

An index region followed by a value region. Each index entry is the UTF-8
key, a 0x00 byte and a 4-byte big-endian offset of the entry's value from
the start of the file. The first offset thus equals the length of the index
region. The last value runs to the end of the file. Values are row texts.

## Row text

	<row><col>5</col><null/><col>some text</col></row>

One element per column: <col> with the canonical text of the value, or
<null/> for an absent value.
*/
package tabledb
