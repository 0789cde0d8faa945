package database

// archiveSchema mirrors query history and error entries into MySQL. The JSON
// document only keeps the most recent entries.
var archiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS query_archive (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    service VARCHAR(64) NOT NULL,
    query TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    INDEX idx_query_archive_user (user_id),
    INDEX idx_query_archive_service (service)
)`,
	`CREATE TABLE IF NOT EXISTS error_archive (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    error_id CHAR(8) NOT NULL,
    message TEXT NOT NULL,
    context VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    INDEX idx_error_archive_error_id (error_id)
)`,
}
