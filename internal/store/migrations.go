package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	imap_host     TEXT NOT NULL,
	imap_port     INTEGER NOT NULL DEFAULT 143,
	imap_username TEXT NOT NULL,
	imap_password TEXT NOT NULL DEFAULT '',
	imap_tls      INTEGER NOT NULL DEFAULT 0 CHECK(imap_tls IN (0, 1)),
	smtp_host     TEXT NOT NULL DEFAULT '',
	smtp_port     INTEGER NOT NULL DEFAULT 587,
	smtp_username TEXT NOT NULL DEFAULT '',
	smtp_password TEXT NOT NULL DEFAULT '',
	smtp_starttls INTEGER NOT NULL DEFAULT 1 CHECK(smtp_starttls IN (0, 1)),
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fetch_runs (
	id          TEXT PRIMARY KEY,
	mailbox_id  TEXT NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	success     INTEGER NOT NULL DEFAULT 0 CHECK(success IN (0, 1)),
	message     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS emails (
	id              TEXT PRIMARY KEY,
	mailbox_id      TEXT NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
	folder          TEXT NOT NULL,
	sender          TEXT NOT NULL DEFAULT '',
	recipients      TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	date_received   DATETIME NOT NULL,
	has_attachments INTEGER NOT NULL DEFAULT 0 CHECK(has_attachments IN (0, 1)),
	message_id      TEXT NOT NULL UNIQUE,
	uid             INTEGER NOT NULL,
	is_read         INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	status          TEXT NOT NULL DEFAULT 'new'
		CHECK(status IN ('new', 'in_progress', 'resolved')),
	assigned_to     TEXT NOT NULL DEFAULT '',
	UNIQUE(mailbox_id, folder, uid)
);

CREATE TABLE IF NOT EXISTS attachments (
	id       TEXT PRIMARY KEY,
	email_id TEXT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	path     TEXT NOT NULL,
	UNIQUE(email_id, filename)
);

CREATE TABLE IF NOT EXISTS outgoing_emails (
	id                TEXT PRIMARY KEY,
	original_email_id TEXT NOT NULL DEFAULT '',
	mailbox_id        TEXT NOT NULL,
	sender_user       TEXT NOT NULL DEFAULT '',
	recipients        TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	body              TEXT NOT NULL DEFAULT '',
	sent_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	order_number TEXT NOT NULL DEFAULT '',
	final_price  TEXT NOT NULL DEFAULT '0',
	currency     TEXT NOT NULL DEFAULT 'USD' CHECK(currency IN ('USD', 'LBP')),
	paid_status  TEXT NOT NULL DEFAULT 'U' CHECK(paid_status IN ('P', 'U', 'O')),
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS payments (
	id             TEXT PRIMARY KEY,
	task_id        TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	amount         TEXT NOT NULL,
	payment_type   TEXT NOT NULL CHECK(payment_type IN ('down', 'full')),
	payment_method TEXT NOT NULL DEFAULT 'cash',
	paid_by        TEXT NOT NULL DEFAULT '',
	paid_at        DATETIME NOT NULL,
	notes          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS payment_statuses (
	task_id              TEXT PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
	paid_amount          TEXT NOT NULL DEFAULT '0',
	is_fully_paid        INTEGER NOT NULL DEFAULT 0 CHECK(is_fully_paid IN (0, 1)),
	is_down_payment_only INTEGER NOT NULL DEFAULT 0 CHECK(is_down_payment_only IN (0, 1)),
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user       TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	message    TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS currency_rates (
	id         TEXT PRIMARY KEY,
	usd_to_lbp TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_mailbox_folder ON emails(mailbox_id, folder);
CREATE INDEX IF NOT EXISTS idx_emails_mailbox_folder_uid ON emails(mailbox_id, folder, uid);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_payments_task_id ON payments(task_id);
CREATE INDEX IF NOT EXISTS idx_fetch_runs_mailbox ON fetch_runs(mailbox_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_emails_mailbox_folder_date
	ON emails(mailbox_id, folder, date_received);

CREATE INDEX IF NOT EXISTS idx_payments_task_paid_at
	ON payments(task_id, paid_at);

CREATE INDEX IF NOT EXISTS idx_activity_log_task_id
	ON activity_log(task_id);

CREATE INDEX IF NOT EXISTS idx_notifications_user_read
	ON notifications(user, read);

CREATE INDEX IF NOT EXISTS idx_fetch_runs_finished
	ON fetch_runs(finished_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
