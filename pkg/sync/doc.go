/*
The sync package implements scratchsync's sync algorithm. It moves cache
directories between persistent storage, which is shared and slow, and
scratch storage, which is fast but local to a job.

Each managed var is processed independently by a bounded pool of workers:

1) If the source doesn't exist, the scratch directory is created empty so
   that the var can still point somewhere valid.
2) If the freshness marker says nothing changed since the last sync, the var
   is skipped.
3) Otherwise the per-var lock is taken, rsync copies the source into the
   scratch directory, and a new marker is written.

A failure in one var never stops the others. Once every var has finished,
the caller prints one export statement per var that didn't fail, sorted by
name, and then reports the failures.

Push runs the same steps in the opposite direction, to persist files that
were created on scratch during a job.
*/
package sync
