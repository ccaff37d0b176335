package cfquorum

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"
)

// CloudflareZone identifies the zone holding the managed record, either
// directly by ID or by name. When only the name is set, the ID is looked up
// through the API once per run.
type CloudflareZone struct {
	ID   string
	Name string
}

func newCloudflareProvider(token string, zone CloudflareZone) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	cf.api, err = cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.zone = zone
	nop := zerolog.Nop()
	cf.logger = &nop
	return cf, nil
}

// cloudflareProvider implements RecordProvider against the Cloudflare v4 API.
type cloudflareProvider struct {
	api    *cloudflare.API
	zone   CloudflareZone
	zoneID string // resolved from zone on first use
	logger *zerolog.Logger
}

func (cf *cloudflareProvider) resolveZoneID(ctx context.Context) (string, error) {
	if cf.zoneID != "" {
		return cf.zoneID, nil
	}
	if cf.zone.ID != "" {
		cf.zoneID = cf.zone.ID
		return cf.zoneID, nil
	}
	if cf.zone.Name == "" {
		return "", errors.New("neither a zone ID nor a zone name was specified")
	}
	cf.logger.Debug().Str("zone", cf.zone.Name).Msg("resolving zone ID")
	zid, err := cf.api.ZoneIDByName(cf.zone.Name)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve the zone ID for %s: %w", cf.zone.Name, err)
	}
	cf.logger.Debug().Str("zone_id", zid).Msg("got zone ID")
	cf.zoneID = zid
	return zid, nil
}

// CurrentRecord implements RecordProvider.
func (cf *cloudflareProvider) CurrentRecord(ctx context.Context, name string) (Record, error) {
	zid, err := cf.resolveZoneID(ctx)
	if err != nil {
		return Record{}, err
	}
	cf.logger.Debug().Str("zone_id", zid).Str("name", name).Msg("looking up A record")

	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: "A",
		Name: name,
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to list DNS records for zone %s: %w", zid, err)
	}
	for _, r := range records {
		if r.Name != name {
			continue
		}
		addr, err := netip.ParseAddr(r.Content)
		if err != nil {
			return Record{}, fmt.Errorf("error parsing IP from record content %q: %w", r.Content, err)
		}
		return Record{ID: r.ID, Name: r.Name, Addr: addr, TTL: r.TTL, Proxied: r.Proxied}, nil
	}
	return Record{}, fmt.Errorf("could not find an A record for %s", name)
}

// UpdateRecord implements RecordProvider. TTL and the proxy flag are carried
// over from the fetched record unchanged.
func (cf *cloudflareProvider) UpdateRecord(ctx context.Context, rec Record, addr netip.Addr) (Record, error) {
	zid, err := cf.resolveZoneID(ctx)
	if err != nil {
		return Record{}, err
	}
	updated, err := cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.UpdateDNSRecordParams{
		ID:      rec.ID,
		Type:    "A",
		Name:    rec.Name,
		Content: addr.String(),
		TTL:     rec.TTL,
		Proxied: rec.Proxied,
	})
	if err != nil {
		return Record{}, fmt.Errorf("cloudflare rejected the update: %w", err)
	}
	newAddr, err := netip.ParseAddr(updated.Content)
	if err != nil {
		return Record{}, fmt.Errorf("error parsing IP from updated record content %q: %w", updated.Content, err)
	}
	return Record{ID: updated.ID, Name: updated.Name, Addr: newAddr, TTL: updated.TTL, Proxied: updated.Proxied}, nil
}
