/*
Package builder is the job builder. It turns the scheduler's queue of ready
dependency nodes into CalculationJobs: batches bounded by a maximum size,
grouped by function affinity, and filled with the resolved values of every
node's inputs.

Jobs are cut from the head of the queue. The head node fixes the affinity of
the job; the rest of the queue is scanned in order for nodes of the same
affinity. Nodes skipped by the scan keep their queue position, so identical
graphs always produce identical jobs.
*/
package builder
