package store

// schemaSQL is the base schema. Later changes go in migrations.
const schemaSQL = `
-- Lessons: one row per uploaded deck
CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    code TEXT NOT NULL,
    school_code TEXT NOT NULL,
    sortcode INTEGER NOT NULL DEFAULT 0,
    is_lesson_material INTEGER NOT NULL DEFAULT 1,
    is_case_study INTEGER NOT NULL DEFAULT 0,
    is_additional_material INTEGER NOT NULL DEFAULT 0,
    module_id TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Slides: sub-collection of a lesson, keyed by slide number
CREATE TABLE IF NOT EXISTS slides (
    lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    slide_number INTEGER NOT NULL,
    id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    content JSON NOT NULL DEFAULT '[]',
    PRIMARY KEY (lesson_id, slide_number)
);

-- Images of a slide, in slide order
CREATE TABLE IF NOT EXISTS slide_images (
    lesson_id TEXT NOT NULL,
    slide_number INTEGER NOT NULL,
    position INTEGER NOT NULL,
    filename TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    storage_path TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (lesson_id, slide_number, position),
    FOREIGN KEY (lesson_id, slide_number) REFERENCES slides(lesson_id, slide_number) ON DELETE CASCADE
);

-- Course modules and their ordered lessons
CREATE TABLE IF NOT EXISTS modules (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS module_lessons (
    module_id TEXT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    PRIMARY KEY (module_id, lesson_id)
);

CREATE INDEX IF NOT EXISTS idx_slide_images_filename ON slide_images(filename);
CREATE INDEX IF NOT EXISTS idx_module_lessons_lesson ON module_lessons(lesson_id);
`
