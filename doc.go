/*
Package cfquorum determines a host's public IPv4 address by polling multiple
independent lookup services and keeps a Cloudflare DNS record pointed at it.

Usage will always start with [New],
which returns a *Client.
New requires the name of the DNS record to manage and a provider option such
as [UsingCloudflare].
One call to [Client.Run] performs one resolution pass followed by one
reconciliation pass; scheduling repeated runs is left to the caller
(cron, a systemd timer, or similar).

Because no single IP-echo service can be trusted to always be reachable,
honest, or correct, the resolver supports two modes:
the default returns the first answer it can extract,
while [InQuorumMode] polls every source and only accepts an address backed by
an absolute majority of the services that responded.
*/
package cfquorum
