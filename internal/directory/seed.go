package directory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// seedNamespace keeps seeded ids stable, so seeding twice updates rows in
// place instead of duplicating them.
var seedNamespace = uuid.MustParse("6f1c2d0e-8a4b-4f3e-9c55-2b7d1e0a9f41")

var (
	companyPrefixes = []string{"Acme", "Northwind", "Blue Harbor", "Summit", "Redline", "Granite", "Polar", "Evergreen", "Copperfield", "Silverline", "Atlas", "Brightway"}
	companySuffixes = []string{"Logistics", "Transport", "Freight", "Couriers", "Haulage", "Movers", "Delivery", "Fleet Services"}
	firstNames      = []string{"Ana", "Ben", "Chloe", "Dario", "Elena", "Felix", "Greta", "Hugo", "Ines", "Jonas", "Kira", "Luca", "Mara", "Nils", "Olga", "Pavel"}
	lastNames       = []string{"Alvarez", "Becker", "Costa", "Dumont", "Eriksen", "Fischer", "Garcia", "Horvat", "Ivanova", "Jensen", "Kovac", "Lindqvist"}
	vehicleModels   = []string{"Sprinter", "Transit", "Ducato", "Master", "Crafter", "Daily", "Actros", "FH16"}
	accessLevels    = []struct{ name, desc string }{
		{"Administrator", "Full access"},
		{"Dispatcher", "Assign vehicles and routes"},
		{"Driver", "Own vehicle and trips"},
		{"Accountant", "Invoices and reports"},
		{"Support", "Read-only client access"},
		{"Auditor", "Read-only, all clients"},
	}
)

// SeedStats counts the records written per kind.
type SeedStats map[Kind]int

// Total returns the number of records written.
func (s SeedStats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Seed fills the directory with count clients and, per client, a couple of
// users and vehicles, plus the fixed access levels. The same seed produces
// the same records.
func Seed(ctx context.Context, svc *Service, count int, seed uint64) (SeedStats, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	stats := SeedStats{}
	now := time.Now().UTC()

	put := func(r Record) error {
		r.ID = seedID(r.Kind, stats[r.Kind])
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now.Add(-time.Duration(rng.IntN(365*24)) * time.Hour)
		}
		if err := svc.Put(ctx, r); err != nil {
			return err
		}
		stats[r.Kind]++
		return nil
	}

	for _, al := range accessLevels {
		if err := put(Record{Kind: KindAccessLevels, Name: al.name, Description: al.desc, Status: StatusActive}); err != nil {
			return stats, err
		}
	}

	for i := 0; i < count; i++ {
		client := Record{
			Kind:        KindClients,
			Name:        fmt.Sprintf("%s %s", pick(rng, companyPrefixes), pick(rng, companySuffixes)),
			Description: fmt.Sprintf("Account %05d", 10000+i),
			Status:      randomStatus(rng),
		}
		if err := put(client); err != nil {
			return stats, err
		}
		clientID := seedID(KindClients, stats[KindClients]-1)

		for range 1 + rng.IntN(3) {
			user := Record{
				Kind:        KindUsers,
				Name:        fmt.Sprintf("%s %s", pick(rng, firstNames), pick(rng, lastNames)),
				Description: pick(rng, accessLevels).name,
				Status:      randomStatus(rng),
				OwnerID:     clientID,
			}
			if err := put(user); err != nil {
				return stats, err
			}
		}

		for range 1 + rng.IntN(4) {
			vehicle := Record{
				Kind:        KindVehicles,
				Name:        plate(rng),
				Description: pick(rng, vehicleModels),
				Status:      randomStatus(rng),
				OwnerID:     clientID,
			}
			if err := put(vehicle); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

func seedID(kind Kind, n int) string {
	return uuid.NewSHA1(seedNamespace, fmt.Appendf(nil, "%s/%d", kind, n)).String()
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func randomStatus(rng *rand.Rand) string {
	switch n := rng.IntN(20); {
	case n == 0:
		return StatusArchived
	case n < 3:
		return StatusSuspended
	default:
		return StatusActive
	}
}

func plate(rng *rand.Rand) string {
	const letters = "ABCDEFGHJKLMNPRSTUVWXYZ"
	b := make([]byte, 0, 9)
	for range 2 {
		b = append(b, letters[rng.IntN(len(letters))])
	}
	b = fmt.Appendf(b, "-%03d-", rng.IntN(1000))
	for range 2 {
		b = append(b, letters[rng.IntN(len(letters))])
	}
	return string(b)
}
