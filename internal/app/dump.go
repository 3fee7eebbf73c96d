package app

import (
	"fmt"
	"sort"
	"strings"
)

// Dump renders the full ledger state as deterministic text, one line per
// entity, ordered by identity or key. Used to compare states across a
// persist/restore cycle and when debugging.
func (a *App) Dump() string {
	var b strings.Builder

	fmt.Fprintf(&b, "escrow balance=%d\n", a.ledger.Balance())

	for _, airline := range a.controller.Airlines() {
		fmt.Fprintf(&b, "airline id=%s name=%q funded=%t\n", airline.ID, airline.Name, airline.Funded)
	}
	for _, p := range a.controller.PendingAirlines() {
		voters := make([]string, len(p.Voters))
		for i, v := range p.Voters {
			voters[i] = v.String()
		}
		sort.Strings(voters)
		fmt.Fprintf(&b, "pending id=%s name=%q votes=%d voters=%s\n", p.ID, p.Name, p.Votes, strings.Join(voters, ","))
	}
	for _, f := range a.registry.All() {
		fmt.Fprintf(&b, "flight key=%s airline=%s designator=%s departure=%d status=%s final=%t\n",
			f.Key, f.Airline, f.Designator, f.Departure, f.Status, f.StatusFinal)
	}
	for _, p := range a.ledger.Passengers() {
		keys := make([]string, 0, len(p.Coverage))
		for k, amount := range p.Coverage {
			keys = append(keys, fmt.Sprintf("%s:%d", k, amount))
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "passenger id=%s credit=%d coverage=%s\n", p.ID, p.Credit, strings.Join(keys, ","))
	}
	for _, key := range a.ledger.CreditedFlights() {
		fmt.Fprintf(&b, "credited flight=%s\n", key)
	}
	for _, r := range a.engine.Reporters() {
		indexes := make([]string, len(r.Indexes))
		for i, idx := range r.Indexes {
			indexes[i] = fmt.Sprintf("%d", idx)
		}
		fmt.Fprintf(&b, "reporter id=%s indexes=%s\n", r.ID, strings.Join(indexes, ","))
	}
	return b.String()
}
