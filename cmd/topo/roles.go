package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"topo/internal/role"
	"topo/internal/validator"

	"github.com/urfave/cli/v2"
)

type roleJSON struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Required    []string          `json:"required"`
	Forbidden   []string          `json:"forbidden"`
	Pinned      map[string]string `json:"pinned"`
	PeerRoles   []string          `json:"peerRoles,omitempty"`
}

func rolesCommand(t *tool) *cli.Command {
	return &cli.Command{
		Name:  "roles",
		Usage: "list the deployment roles",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the roles as JSON"},
		},
		Action: func(c *cli.Context) error {
			var roles []role.Role
			for _, id := range t.registry.IDs() {
				r, _ := t.registry.Lookup(id)
				roles = append(roles, r)
			}
			if c.Bool("json") {
				return t.printRolesJSON(roles)
			}
			fmt.Fprint(t.stdout, formatRoles(roles))
			return nil
		},
	}
}

func (t *tool) printRolesJSON(roles []role.Role) error {
	out := make([]roleJSON, len(roles))
	for i, r := range roles {
		pinned := make(map[string]string, len(r.Pinned))
		for _, kv := range r.Pinned {
			pinned[kv.Path] = kv.Value.Text()
		}
		out[i] = roleJSON{
			ID:          r.ID,
			Description: r.Description,
			Required:    append([]string{}, r.Required...),
			Forbidden:   append([]string{}, r.Forbidden...),
			Pinned:      pinned,
			PeerRoles:   r.PeerRoles,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot format roles: %v", err), exitUsage)
	}
	fmt.Fprintln(t.stdout, string(data))
	return nil
}

func formatRoles(roles []role.Role) string {
	var sb strings.Builder
	for i, r := range roles {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s\n", r.ID, r.Description)
		if len(r.Required) > 0 {
			fmt.Fprintf(&sb, "  required:   %s\n", strings.Join(r.Required, ", "))
		}
		if len(r.Forbidden) > 0 {
			fmt.Fprintf(&sb, "  forbidden:  %s\n", strings.Join(r.Forbidden, ", "))
		}
		for _, kv := range r.Pinned {
			fmt.Fprintf(&sb, "  pinned:     %s = %s\n", kv.Path, kv.Value.Text())
		}
		if len(r.PeerRoles) > 0 {
			fmt.Fprintf(&sb, "  pairs with: %s\n", strings.Join(r.PeerRoles, ", "))
		}
	}
	return sb.String()
}

type ruleJSON struct {
	ID    string `json:"id"`
	Class string `json:"class"`
	Rule  string `json:"rule,omitempty"`
}

func rulesCommand(t *tool) *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "list the validation rules and schema invariants",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the rules as JSON"},
		},
		Action: func(c *cli.Context) error {
			var out []ruleJSON
			for _, r := range t.resolver(nil).Rules() {
				out = append(out, ruleJSON{ID: r.ID(), Class: string(r.Class())})
			}
			for _, inv := range t.schema.Invariants {
				out = append(out, ruleJSON{ID: "invariant/" + inv.Name, Class: string(validator.ClassInvariant), Rule: inv.Rule})
			}
			if c.Bool("json") {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("cannot format rules: %v", err), exitUsage)
				}
				fmt.Fprintln(t.stdout, string(data))
				return nil
			}
			for _, r := range out {
				if r.Rule != "" {
					fmt.Fprintf(t.stdout, "%-24s %-14s %s\n", r.ID, r.Class, r.Rule)
					continue
				}
				fmt.Fprintf(t.stdout, "%-24s %s\n", r.ID, r.Class)
			}
			return nil
		},
	}
}
