/*
Package autofilter implements an automatic layer-7 DDoS mitigation daemon.

It tails the access log of a fronting HTTP server, aggregates request
activity per client address into one-minute windows, identifies abusive
clients by comparing a weighted request count against configurable
thresholds, verifies that an offender is not a legitimate search-engine
crawler via forward-confirmed reverse DNS, and emits a bot list consumed
by the fronting server to block offenders. When the bot list changes, the
daemon signals the fronting server to reload, rate-limited to avoid
thrash.

# Pipeline

The daemon wires five stages together, each owning its state exclusively
for the duration it runs:

	Tailer -> Aggregator -> Detector -> (Threshold, FCrDNS, BotStore) -> BotStore -> ReloadController

Tailer follows the access log and survives rotation. Aggregator buckets
lines into one-minute windows keyed by their timestamp prefix. On window
close the Detector resolves thresholds, verifies suspected offenders
aren't crawlers, and merges them into the BotStore, which persists the
result atomically. The ReloadController compares the new bot set against
the last one it published and signals the fronting server's master
process when it has changed and the cooldown has elapsed.

See Daemon for how these are composed, and Config/DaemonSettings for the
two configuration surfaces (threshold rules and ambient daemon settings).
*/
package autofilter
