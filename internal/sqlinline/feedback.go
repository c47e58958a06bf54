package sqlinline

const QUpsertVideoFeedback = `--sql 52c16a98-8a4c-4106-a701-970f473628bf
insert into video_feedback (user_id, video_id, rating)
values ($1::text, $2::uuid, $3::int)
on conflict (user_id, video_id) do update set
    rating = excluded.rating,
    updated_at = now()
returning id::text, user_id, video_id::text, rating, created_at, updated_at;
`
