package infrastructure

// schemaSQL is the full application schema. The three trigger families are
// load-bearing:
//
//  1. trigger_enqueue_application_processing — the sole crash-safe enqueue
//     point. Inserting an application with status PENDING writes a
//     pending_jobs row in the same transaction; no code path enqueues
//     directly on creation.
//  2. audit_status_change — every status change yields exactly one
//     audit_logs row, attributed from the app.changed_by / app.change_reason
//     session settings when a manual caller set them.
//  3. update_*_updated_at — refreshes updated_at on mutable tables.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

DO $$ BEGIN
    CREATE TYPE country_code AS ENUM ('ES', 'PT', 'IT', 'MX', 'CO', 'BR');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
    CREATE TYPE application_status AS ENUM (
        'PENDING', 'VALIDATING', 'APPROVED', 'REJECTED',
        'UNDER_REVIEW', 'COMPLETED', 'CANCELLED'
    );
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
    CREATE TYPE pending_job_status AS ENUM (
        'pending', 'enqueued', 'processing', 'completed', 'failed'
    );
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
    CREATE TYPE webhook_event_status AS ENUM ('processing', 'processed', 'failed');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

CREATE TABLE IF NOT EXISTS applications (
    id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    country               country_code NOT NULL,
    full_name             BYTEA NOT NULL,
    identity_document     BYTEA NOT NULL,
    requested_amount      NUMERIC(12, 2) NOT NULL,
    monthly_income        NUMERIC(12, 2) NOT NULL,
    currency              VARCHAR(3) NOT NULL,
    idempotency_key       VARCHAR(255),
    status                application_status NOT NULL DEFAULT 'PENDING',
    country_specific_data JSONB NOT NULL DEFAULT '{}'::jsonb,
    banking_data          JSONB NOT NULL DEFAULT '{}'::jsonb,
    validation_errors     JSONB NOT NULL DEFAULT '[]'::jsonb,
    risk_score            NUMERIC(5, 2),
    created_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at            TIMESTAMPTZ
);

-- One active application per (country, identity_document).
CREATE UNIQUE INDEX IF NOT EXISTS unique_document_per_country
    ON applications (country, identity_document)
    WHERE status NOT IN ('CANCELLED', 'REJECTED', 'COMPLETED') AND deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS unique_idempotency_key
    ON applications (idempotency_key)
    WHERE idempotency_key IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_applications_country_status ON applications (country, status);
CREATE INDEX IF NOT EXISTS idx_applications_created_at ON applications (created_at);
CREATE INDEX IF NOT EXISTS idx_applications_deleted_at ON applications (deleted_at);

CREATE TABLE IF NOT EXISTS audit_logs (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    application_id UUID NOT NULL,
    old_status     application_status,
    new_status     application_status NOT NULL,
    changed_by     VARCHAR(100) NOT NULL DEFAULT 'system',
    change_reason  VARCHAR(500),
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_application_id ON audit_logs (application_id, created_at);

CREATE TABLE IF NOT EXISTS pending_jobs (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    application_id UUID NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
    task_name      VARCHAR(255) NOT NULL DEFAULT 'process_credit_application',
    job_args       JSONB NOT NULL DEFAULT '{}'::jsonb,
    job_kwargs     JSONB NOT NULL DEFAULT '{}'::jsonb,
    status         pending_job_status NOT NULL DEFAULT 'pending',
    queue_job_id   VARCHAR(255),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    enqueued_at    TIMESTAMPTZ,
    processed_at   TIMESTAMPTZ,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    error_message  TEXT,
    retry_count    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pending_jobs_status_created
    ON pending_jobs (status, created_at);

CREATE TABLE IF NOT EXISTS webhook_events (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    idempotency_key VARCHAR(255) NOT NULL UNIQUE,
    application_id  UUID NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
    payload         JSONB NOT NULL,
    status          webhook_event_status NOT NULL DEFAULT 'processing',
    error_message   TEXT,
    processed_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_created_at ON webhook_events (created_at);
CREATE INDEX IF NOT EXISTS idx_webhook_events_application_id ON webhook_events (application_id);

CREATE TABLE IF NOT EXISTS failed_jobs (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    job_id          VARCHAR(255) NOT NULL UNIQUE,
    task_name       VARCHAR(255) NOT NULL,
    job_args        JSONB NOT NULL DEFAULT '{}'::jsonb,
    job_kwargs      JSONB NOT NULL DEFAULT '{}'::jsonb,
    error_type      VARCHAR(255) NOT NULL,
    error_message   TEXT NOT NULL,
    error_traceback TEXT,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    max_retries     INTEGER NOT NULL DEFAULT 3,
    status          VARCHAR(50) NOT NULL DEFAULT 'pending',
    is_retryable    BOOLEAN NOT NULL DEFAULT FALSE,
    pending_job_id  UUID,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_failed_jobs_retryable
    ON failed_jobs (status, is_retryable, created_at);

-- Trigger 1: crash-safe enqueue. The INSERT into pending_jobs commits in the
-- same transaction as the application row, so a process crash between the
-- HTTP response and the queue push can never lose work.
CREATE OR REPLACE FUNCTION enqueue_application_processing()
RETURNS TRIGGER AS $$
BEGIN
    INSERT INTO pending_jobs (application_id, task_name, job_args)
    VALUES (
        NEW.id,
        'process_credit_application',
        jsonb_build_object(
            'application_id', NEW.id::text,
            'country', NEW.country::text,
            'triggered_by', 'database_trigger',
            'triggered_at', to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
        )
    );
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trigger_enqueue_application_processing ON applications;
CREATE TRIGGER trigger_enqueue_application_processing
    AFTER INSERT ON applications
    FOR EACH ROW
    WHEN (NEW.status = 'PENDING')
    EXECUTE FUNCTION enqueue_application_processing();

-- Trigger 2: audit every status change. Manual callers attribute the change
-- through transaction-scoped settings; unset settings fall back to 'system'.
CREATE OR REPLACE FUNCTION audit_status_change()
RETURNS TRIGGER AS $$
DECLARE
    v_changed_by    TEXT := COALESCE(NULLIF(current_setting('app.changed_by', true), ''), 'system');
    v_change_reason TEXT := NULLIF(current_setting('app.change_reason', true), '');
BEGIN
    INSERT INTO audit_logs (application_id, old_status, new_status, changed_by, change_reason)
    VALUES (NEW.id, OLD.status, NEW.status, v_changed_by, v_change_reason);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_status_change ON applications;
CREATE TRIGGER audit_status_change
    AFTER UPDATE ON applications
    FOR EACH ROW
    WHEN (OLD.status IS DISTINCT FROM NEW.status)
    EXECUTE FUNCTION audit_status_change();

-- Trigger 3: updated_at maintenance.
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = CURRENT_TIMESTAMP;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS update_applications_updated_at ON applications;
CREATE TRIGGER update_applications_updated_at
    BEFORE UPDATE ON applications
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();

DROP TRIGGER IF EXISTS update_pending_jobs_updated_at ON pending_jobs;
CREATE TRIGGER update_pending_jobs_updated_at
    BEFORE UPDATE ON pending_jobs
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();

DROP TRIGGER IF EXISTS update_webhook_events_updated_at ON webhook_events;
CREATE TRIGGER update_webhook_events_updated_at
    BEFORE UPDATE ON webhook_events
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();

DROP TRIGGER IF EXISTS update_failed_jobs_updated_at ON failed_jobs;
CREATE TRIGGER update_failed_jobs_updated_at
    BEFORE UPDATE ON failed_jobs
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();

-- Partition helpers used by the maintenance jobs.

-- ensure_future_partitions creates monthly range partitions for the next
-- p_months_ahead months on an already-partitioned table. Returns the number
-- of partitions created.
CREATE OR REPLACE FUNCTION ensure_future_partitions(p_table_name TEXT, p_months_ahead INT DEFAULT 3)
RETURNS INT AS $$
DECLARE
    v_created     INT := 0;
    v_month       DATE;
    v_next        DATE;
    v_partition   TEXT;
    v_partitioned BOOLEAN;
BEGIN
    SELECT EXISTS (
        SELECT 1 FROM pg_partitioned_table pt
        JOIN pg_class c ON c.oid = pt.partrelid
        WHERE c.relname = p_table_name
    ) INTO v_partitioned;

    IF NOT v_partitioned THEN
        RETURN 0;
    END IF;

    FOR i IN 0..p_months_ahead LOOP
        v_month := date_trunc('month', now())::date + (i || ' months')::interval;
        v_next := (v_month + interval '1 month')::date;
        v_partition := p_table_name || '_' || to_char(v_month, 'YYYY_MM');

        IF NOT EXISTS (SELECT 1 FROM pg_class WHERE relname = v_partition) THEN
            EXECUTE format(
                'CREATE TABLE %I PARTITION OF %I FOR VALUES FROM (%L) TO (%L)',
                v_partition, p_table_name, v_month, v_next
            );
            v_created := v_created + 1;
        END IF;
    END LOOP;

    RETURN v_created;
END;
$$ LANGUAGE plpgsql;

-- check_and_partition_table converts a non-partitioned table to a
-- created_at-range-partitioned table once its row count crosses the
-- threshold. The original table is kept as <name>_unpartitioned until the
-- operator drops it. Returns a JSONB report.
CREATE OR REPLACE FUNCTION check_and_partition_table(
    p_table_name TEXT,
    p_threshold BIGINT DEFAULT 1000000,
    p_partition_column TEXT DEFAULT 'created_at'
)
RETURNS JSONB AS $$
DECLARE
    v_row_count   BIGINT;
    v_partitioned BOOLEAN;
    v_min_month   DATE;
    v_month       DATE;
    v_last        DATE;
BEGIN
    SELECT EXISTS (
        SELECT 1 FROM pg_partitioned_table pt
        JOIN pg_class c ON c.oid = pt.partrelid
        WHERE c.relname = p_table_name
    ) INTO v_partitioned;

    IF v_partitioned THEN
        RETURN jsonb_build_object(
            'table_name', p_table_name,
            'success', true,
            'action', 'already_partitioned'
        );
    END IF;

    EXECUTE format('SELECT count(*) FROM %I', p_table_name) INTO v_row_count;

    IF v_row_count < p_threshold THEN
        RETURN jsonb_build_object(
            'table_name', p_table_name,
            'success', true,
            'action', 'below_threshold',
            'row_count', v_row_count
        );
    END IF;

    EXECUTE format(
        'SELECT COALESCE(date_trunc(''month'', min(%I))::date, date_trunc(''month'', now())::date) FROM %I',
        p_partition_column, p_table_name
    ) INTO v_min_month;

    EXECUTE format('ALTER TABLE %I RENAME TO %I', p_table_name, p_table_name || '_unpartitioned');
    EXECUTE format(
        'CREATE TABLE %I (LIKE %I INCLUDING DEFAULTS INCLUDING CONSTRAINTS) PARTITION BY RANGE (%I)',
        p_table_name, p_table_name || '_unpartitioned', p_partition_column
    );

    v_month := v_min_month;
    v_last := (date_trunc('month', now()) + interval '3 months')::date;
    WHILE v_month <= v_last LOOP
        EXECUTE format(
            'CREATE TABLE %I PARTITION OF %I FOR VALUES FROM (%L) TO (%L)',
            p_table_name || '_' || to_char(v_month, 'YYYY_MM'),
            p_table_name, v_month, (v_month + interval '1 month')::date
        );
        v_month := (v_month + interval '1 month')::date;
    END LOOP;

    EXECUTE format(
        'INSERT INTO %I SELECT * FROM %I',
        p_table_name, p_table_name || '_unpartitioned'
    );

    RETURN jsonb_build_object(
        'table_name', p_table_name,
        'success', true,
        'action', 'partitioned',
        'row_count', v_row_count
    );
END;
$$ LANGUAGE plpgsql;
`
