package sqlite

// schema is applied on startup. Statements are idempotent so an existing
// database is left untouched.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'offline',
	last_seen     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL DEFAULT 'group',
	creator_id       INTEGER NOT NULL,
	direct_key       TEXT UNIQUE,
	is_active        BOOLEAN NOT NULL DEFAULT 1,
	allow_invites    BOOLEAN NOT NULL DEFAULT 1,
	is_public        BOOLEAN NOT NULL DEFAULT 0,
	max_participants INTEGER NOT NULL DEFAULT 100,
	last_activity    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (creator_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id    INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	role       TEXT NOT NULL DEFAULT 'member',
	joined_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id     INTEGER NOT NULL,
	sender_id   INTEGER NOT NULL,
	content     TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'text',
	reply_to_id INTEGER,
	edited      BOOLEAN NOT NULL DEFAULT 0,
	edited_at   DATETIME,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_participants_user ON room_participants(user_id);
`
