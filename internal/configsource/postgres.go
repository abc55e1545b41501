package configsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/igwedaniel/blockwatcher/internal/types"
)

// PostgresSource loads network, monitor and trigger records for one tenant
// from the relational backend. Rows are scoped by tenant id plus
// active/soft-delete flags.
type PostgresSource struct {
	pool     *pgxpool.Pool
	tenantID uuid.UUID
	logger   *logrus.Logger
}

// NewPostgresSource connects to the database and verifies the connection
func NewPostgresSource(ctx context.Context, dbURL, tenantID string, logger *logrus.Logger) (*PostgresSource, error) {
	tenant, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgresSource{
		pool:     pool,
		tenantID: tenant,
		logger:   logger,
	}, nil
}

// Close releases the connection pool
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// LoadNetworks queries active, non-deleted networks for the tenant,
// optionally narrowed to the requested slugs. The rpc_urls column may mix
// plain strings, flat objects and nested value objects; all are normalized
// into the canonical endpoint shape on decode.
func (s *PostgresSource) LoadNetworks(ctx context.Context, slugs []string) (map[string]types.NetworkConfig, error) {
	query := `
		SELECT name, slug, network_type, chain_id, network_passphrase, rpc_urls,
		       block_time_ms, confirmation_blocks, cron_schedule, max_past_blocks, store_blocks
		FROM networks
		WHERE tenant_id = $1
		AND active = true
		AND deleted_at IS NULL`

	args := []any{s.tenantID}
	if len(slugs) > 0 {
		query += ` AND slug = ANY($2)`
		args = append(args, slugs)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query networks: %w", err)
	}
	defer rows.Close()

	networks := make(map[string]types.NetworkConfig)
	for rows.Next() {
		var (
			network       types.NetworkConfig
			chainID       *int64
			maxPastBlocks *int64
			blockTimeMs   *int64
			confirmations *int64
			cronSchedule  *string
			rpcRaw        []byte
			storeBlocks   *bool
		)
		if err := rows.Scan(
			&network.Name,
			&network.Slug,
			&network.NetworkType,
			&chainID,
			&network.NetworkPassphrase,
			&rpcRaw,
			&blockTimeMs,
			&confirmations,
			&cronSchedule,
			&maxPastBlocks,
			&storeBlocks,
		); err != nil {
			return nil, fmt.Errorf("failed to scan network row: %w", err)
		}

		if chainID != nil {
			id := uint64(*chainID)
			network.ChainID = &id
		}
		if maxPastBlocks != nil {
			past := uint64(*maxPastBlocks)
			network.MaxPastBlocks = &past
		}
		if blockTimeMs != nil {
			network.BlockTimeMs = uint64(*blockTimeMs)
		}
		if confirmations != nil {
			network.ConfirmationBlocks = uint64(*confirmations)
		}
		if cronSchedule != nil {
			network.CronSchedule = *cronSchedule
		}
		if storeBlocks != nil {
			network.StoreBlocks = *storeBlocks
		}
		if len(rpcRaw) > 0 {
			if err := json.Unmarshal(rpcRaw, &network.RPCURLs); err != nil {
				return nil, fmt.Errorf("failed to normalize rpc_urls for %s: %w", network.Slug, err)
			}
		}

		networks[network.Slug] = network
		s.logger.Debugf("Loaded network from DB: %s", network.Slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read network rows: %w", err)
	}

	if len(networks) == 0 {
		return nil, &NotFoundError{Requested: slugs}
	}

	return networks, nil
}

// LoadMonitorsAndTriggers selects active, non-paused monitors for the
// tenant, collects every trigger reference across them into a deduplicated
// working set, and resolves each reference to its type-specific record.
// Backend failure is reported to the caller, never fatal: the run degrades
// to fabricated default monitors.
func (s *PostgresSource) LoadMonitorsAndTriggers(ctx context.Context) ([]types.MonitorConfig, *TriggerSet, error) {
	monitors, refs, err := s.loadMonitors(ctx)
	if err != nil {
		return nil, nil, err
	}

	triggers := NewTriggerSet()
	if len(refs) > 0 {
		if err := s.loadTriggers(ctx, refs, triggers); err != nil {
			return nil, nil, err
		}
		for _, ref := range refs {
			if !triggers.Contains(ref) {
				s.logger.Warnf("Dropping unresolved trigger reference: %s", ref)
			}
		}
	}

	s.logger.Debugf("Loaded %d monitors and %d triggers from database", len(monitors), triggers.Len())
	return monitors, triggers, nil
}

func (s *PostgresSource) loadMonitors(ctx context.Context) ([]types.MonitorConfig, []string, error) {
	query := `
		SELECT slug, paused, networks, addresses, match_functions, match_events,
		       match_transactions, trigger_conditions, triggers
		FROM monitors
		WHERE tenant_id = $1
		AND active = true
		AND paused = false
		AND deleted_at IS NULL`

	rows, err := s.pool.Query(ctx, query, s.tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	var monitors []types.MonitorConfig
	var refs []string
	seen := make(map[string]bool)

	for rows.Next() {
		var (
			monitor                                  types.MonitorConfig
			networksRaw, addressesRaw                []byte
			functionsRaw, eventsRaw, transactionsRaw []byte
			conditionsRaw, triggersRaw               []byte
		)
		if err := rows.Scan(
			&monitor.Name, // monitor slug doubles as its name
			&monitor.Paused,
			&networksRaw,
			&addressesRaw,
			&functionsRaw,
			&eventsRaw,
			&transactionsRaw,
			&conditionsRaw,
			&triggersRaw,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}

		if err := decodeColumn(networksRaw, &monitor.Networks); err != nil {
			return nil, nil, fmt.Errorf("invalid networks for monitor %s: %w", monitor.Name, err)
		}
		if err := decodeColumn(addressesRaw, &monitor.Addresses); err != nil {
			return nil, nil, fmt.Errorf("invalid addresses for monitor %s: %w", monitor.Name, err)
		}
		if err := decodeColumn(functionsRaw, &monitor.MatchConditions.Functions); err != nil {
			return nil, nil, fmt.Errorf("invalid match_functions for monitor %s: %w", monitor.Name, err)
		}
		if err := decodeColumn(eventsRaw, &monitor.MatchConditions.Events); err != nil {
			return nil, nil, fmt.Errorf("invalid match_events for monitor %s: %w", monitor.Name, err)
		}
		if err := decodeColumn(transactionsRaw, &monitor.MatchConditions.Transactions); err != nil {
			return nil, nil, fmt.Errorf("invalid match_transactions for monitor %s: %w", monitor.Name, err)
		}
		if err := decodeColumn(conditionsRaw, &monitor.TriggerConditions); err != nil {
			return nil, nil, fmt.Errorf("invalid trigger_conditions for monitor %s: %w", monitor.Name, err)
		}
		if err := decodeColumn(triggersRaw, &monitor.Triggers); err != nil {
			return nil, nil, fmt.Errorf("invalid triggers for monitor %s: %w", monitor.Name, err)
		}

		for _, ref := range monitor.Triggers {
			key := ref.Key()
			if key != "" && !seen[key] {
				seen[key] = true
				refs = append(refs, key)
			}
		}

		monitors = append(monitors, monitor)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read monitor rows: %w", err)
	}

	return monitors, refs, nil
}

func (s *PostgresSource) loadTriggers(ctx context.Context, refs []string, set *TriggerSet) error {
	query := `
		SELECT id, name, slug, trigger_type
		FROM triggers
		WHERE (slug = ANY($1) OR id::text = ANY($1))
		AND tenant_id = $2
		AND active = true
		AND deleted_at IS NULL`

	rows, err := s.pool.Query(ctx, query, refs, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var metas []types.TriggerConfig
	for rows.Next() {
		var (
			id          uuid.UUID
			trigger     types.TriggerConfig
			triggerType string
		)
		if err := rows.Scan(&id, &trigger.Name, &trigger.Slug, &triggerType); err != nil {
			return fmt.Errorf("failed to scan trigger row: %w", err)
		}
		trigger.ID = id.String()
		trigger.Type = types.TriggerType(triggerType)
		metas = append(metas, trigger)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read trigger rows: %w", err)
	}

	for _, meta := range metas {
		trigger := meta
		switch trigger.Type {
		case types.TriggerEmail:
			email, err := s.loadEmailTrigger(ctx, trigger.ID)
			if err != nil {
				return err
			}
			if email == nil {
				s.logger.Warnf("Trigger %s has no email record, skipping", trigger.Slug)
				continue
			}
			trigger.Email = email
		case types.TriggerWebhook:
			webhook, err := s.loadWebhookTrigger(ctx, trigger.ID)
			if err != nil {
				return err
			}
			if webhook == nil {
				s.logger.Warnf("Trigger %s has no webhook record, skipping", trigger.Slug)
				continue
			}
			trigger.Webhook = webhook
		default:
			s.logger.Warnf("Trigger %s has unsupported type %q, skipping", trigger.Slug, trigger.Type)
			continue
		}
		set.Add(&trigger)
	}

	return nil
}

func (s *PostgresSource) loadEmailTrigger(ctx context.Context, triggerID string) (*types.EmailTrigger, error) {
	query := `
		SELECT host, port, username_value, password_value, sender, recipients,
		       message_title, message_body
		FROM email_triggers WHERE trigger_id = $1`

	var (
		email    types.EmailTrigger
		username string
		password string
	)
	err := s.pool.QueryRow(ctx, query, triggerID).Scan(
		&email.Host,
		&email.Port,
		&username,
		&password,
		&email.Sender,
		&email.Recipients,
		&email.Message.Title,
		&email.Message.Body,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email trigger %s: %w", triggerID, err)
	}

	email.Username = types.Plain(username)
	email.Password = types.Plain(password)
	return &email, nil
}

func (s *PostgresSource) loadWebhookTrigger(ctx context.Context, triggerID string) (*types.WebhookTrigger, error) {
	query := `
		SELECT url_value, method, headers, secret_value, message_title, message_body
		FROM webhook_triggers WHERE trigger_id = $1`

	var (
		webhook    types.WebhookTrigger
		url        string
		headersRaw []byte
		secret     *string
	)
	err := s.pool.QueryRow(ctx, query, triggerID).Scan(
		&url,
		&webhook.Method,
		&headersRaw,
		&secret,
		&webhook.Message.Title,
		&webhook.Message.Body,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook trigger %s: %w", triggerID, err)
	}

	webhook.URL = types.Plain(url)
	webhook.Headers = map[string]string{}
	if len(headersRaw) > 0 {
		if err := json.Unmarshal(headersRaw, &webhook.Headers); err != nil {
			return nil, fmt.Errorf("invalid headers for trigger %s: %w", triggerID, err)
		}
	}
	if secret != nil {
		value := types.Plain(*secret)
		webhook.Secret = &value
	}

	return &webhook, nil
}

// decodeColumn unmarshals a nullable jsonb column, leaving the target zero
// for NULL.
func decodeColumn(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
