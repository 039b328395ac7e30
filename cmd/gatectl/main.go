package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

const usage = `gatectl - gatehouse administration

Usage:
  gatectl <command> [flags]

Commands:
  migrate      run schema migrations
  grant        bind an identity to a role
  revoke       remove an identity-to-role binding
  put-acl      create or replace an ACL entry on a role
  delete-acl   remove an ACL entry from a role
  list-roles   list role names in an organization
  create-key   issue a new API key
  revoke-key   revoke an API key
  list-keys    list an organization's API keys

Common flags:
  -db <url>    database URL (default $GATEHOUSE_POSTGRES_URL)
`

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch command {
	case "migrate":
		err = runMigrate(ctx, args, logger)
	case "grant", "revoke":
		err = runBinding(ctx, command, args, logger)
	case "put-acl":
		err = runPutACL(ctx, args, logger)
	case "delete-acl":
		err = runDeleteACL(ctx, args, logger)
	case "list-roles":
		err = runListRoles(ctx, args)
	case "create-key":
		err = runCreateKey(ctx, args, logger)
	case "revoke-key":
		err = runRevokeKey(ctx, args, logger)
	case "list-keys":
		err = runListKeys(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Fatalf("%s failed: %v", command, err)
	}
}

func newFlagSet(command string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	dbURL := fs.String("db", os.Getenv("GATEHOUSE_POSTGRES_URL"), "database URL")
	return fs, dbURL
}

func connect(dbURL string, logger *logrus.Logger) (*postgres.ConnectionManager, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is required (-db or GATEHOUSE_POSTGRES_URL)")
	}
	cfg := storage.DefaultConfig()
	cfg.PostgresURL = dbURL

	// The CLI talks to the primary only; quiet structured logs.
	obsLogger := observability.NewLogger(observability.WarnLevel, os.Stderr)
	cm, err := postgres.NewConnectionManager(cfg, obsLogger)
	if err != nil {
		return nil, err
	}
	logger.Debug("connected to database")
	return cm, nil
}

func parseIdentity(kind, value, orgID string) (authz.Identity, error) {
	switch authz.IdentityKind(kind) {
	case authz.IdentityUser:
		return authz.UserIdentity(value), nil
	case authz.IdentityOrg:
		return authz.OrgIdentity(orgID), nil
	case authz.IdentityGroup:
		return authz.GroupIdentity(orgID, value), nil
	case authz.IdentityAPIKey:
		return authz.APIKeyIdentity(value), nil
	}
	return authz.Identity{}, fmt.Errorf("unknown identity kind: %q (want user, org, group or apikey)", kind)
}

func runMigrate(ctx context.Context, args []string, logger *logrus.Logger) error {
	fs, dbURL := newFlagSet("migrate")
	fs.Parse(args)

	cm, err := connect(*dbURL, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	obsLogger := observability.NewLogger(observability.InfoLevel, os.Stderr)
	if err := postgres.RunMigrations(ctx, cm.Primary(), obsLogger); err != nil {
		return err
	}
	logger.Info("migrations complete")
	return nil
}

func runBinding(ctx context.Context, command string, args []string, logger *logrus.Logger) error {
	fs, dbURL := newFlagSet(command)
	orgID := fs.String("org", "", "organization ID")
	kind := fs.String("kind", "user", "identity kind (user, org, group, apikey)")
	value := fs.String("identity", "", "identity value")
	role := fs.String("role", "", "role name")
	fs.Parse(args)

	if *orgID == "" || *role == "" {
		return fmt.Errorf("-org and -role are required")
	}
	normalized := auth.NormalizeOrgID(*orgID)

	identity, err := parseIdentity(*kind, *value, normalized)
	if err != nil {
		return err
	}

	cm, err := connect(*dbURL, logger)
	if err != nil {
		return err
	}
	defer cm.Close()
	directory := postgres.NewRoleDirectory(cm)

	if command == "grant" {
		if err := directory.GrantRole(ctx, normalized, identity, *role); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"identity": identity.String(), "role": *role}).Info("role granted")
		return nil
	}

	if err := directory.RevokeRole(ctx, normalized, identity, *role); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"identity": identity.String(), "role": *role}).Info("role revoked")
	return nil
}

func runPutACL(ctx context.Context, args []string, logger *logrus.Logger) error {
	fs, dbURL := newFlagSet("put-acl")
	orgID := fs.String("org", "", "organization ID")
	role := fs.String("role", "", "role name")
	path := fs.String("path", "", "resource path pattern")
	actions := fs.String("actions", "", "comma-separated actions (create,read,update,delete)")
	fs.Parse(args)

	if *orgID == "" || *role == "" || *path == "" || *actions == "" {
		return fmt.Errorf("-org, -role, -path and -actions are required")
	}

	entry := authz.Entry{Path: *path}
	for _, raw := range splitComma(*actions) {
		action, err := authz.ParseAction(raw)
		if err != nil {
			return err
		}
		entry.Actions = append(entry.Actions, action)
	}
	if err := authz.ValidatePattern(entry.Path); err != nil {
		return err
	}

	cm, err := connect(*dbURL, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := postgres.NewRoleDirectory(cm).PutACLEntry(ctx, auth.NormalizeOrgID(*orgID), *role, entry); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"role": *role, "path": entry.Path}).Info("ACL entry stored")
	return nil
}

func runDeleteACL(ctx context.Context, args []string, logger *logrus.Logger) error {
	fs, dbURL := newFlagSet("delete-acl")
	orgID := fs.String("org", "", "organization ID")
	role := fs.String("role", "", "role name")
	path := fs.String("path", "", "resource path pattern")
	fs.Parse(args)

	if *orgID == "" || *role == "" || *path == "" {
		return fmt.Errorf("-org, -role and -path are required")
	}

	cm, err := connect(*dbURL, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := postgres.NewRoleDirectory(cm).DeleteACLEntry(ctx, auth.NormalizeOrgID(*orgID), *role, *path); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"role": *role, "path": *path}).Info("ACL entry deleted")
	return nil
}

func runListRoles(ctx context.Context, args []string) error {
	fs, dbURL := newFlagSet("list-roles")
	orgID := fs.String("org", "", "organization ID")
	fs.Parse(args)

	if *orgID == "" {
		return fmt.Errorf("-org is required")
	}

	cm, err := connect(*dbURL, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer cm.Close()

	roles, err := postgres.NewRoleDirectory(cm).ListRoleNames(ctx, auth.NormalizeOrgID(*orgID))
	if err != nil {
		return err
	}
	for _, role := range roles {
		fmt.Println(role)
	}
	return nil
}

func runCreateKey(ctx context.Context, args []string, logger *logrus.Logger) error {
	fs, dbURL := newFlagSet("create-key")
	orgID := fs.String("org", "", "organization ID")
	userID := fs.String("user", "", "user ID the key acts for")
	name := fs.String("name", "", "key name")
	fs.Parse(args)

	if *orgID == "" || *userID == "" {
		return fmt.Errorf("-org and -user are required")
	}

	key, keyHash, keyPrefix, err := auth.NewKeyGenerator().GenerateKey()
	if err != nil {
		return err
	}

	cm, err := connect(*dbURL, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	record, err := postgres.NewKeyDirectory(cm).CreateAPIKey(ctx, auth.NormalizeOrgID(*orgID), *userID, *name, keyHash, keyPrefix)
	if err != nil {
		return err
	}

	// The plaintext key is shown exactly once.
	fmt.Printf("key id:  %s\n", record.ID)
	fmt.Printf("api key: %s\n", key)
	return nil
}

func runRevokeKey(ctx context.Context, args []string, logger *logrus.Logger) error {
	fs, dbURL := newFlagSet("revoke-key")
	keyID := fs.String("id", "", "API key ID")
	fs.Parse(args)

	if *keyID == "" {
		return fmt.Errorf("-id is required")
	}

	cm, err := connect(*dbURL, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := postgres.NewKeyDirectory(cm).RevokeAPIKey(ctx, *keyID); err != nil {
		return err
	}
	logger.WithField("id", *keyID).Info("API key revoked")
	return nil
}

func runListKeys(ctx context.Context, args []string) error {
	fs, dbURL := newFlagSet("list-keys")
	orgID := fs.String("org", "", "organization ID")
	fs.Parse(args)

	if *orgID == "" {
		return fmt.Errorf("-org is required")
	}

	cm, err := connect(*dbURL, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer cm.Close()

	keys, err := postgres.NewKeyDirectory(cm).ListAPIKeys(ctx, auth.NormalizeOrgID(*orgID))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(keys)
}

func splitComma(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
