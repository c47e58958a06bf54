package sqlinline

const QInsertVideoJob = `--sql aa655182-dca1-4177-97cc-caffab388472
insert into video_jobs (owner_id, filename, source_path, source_language, target_language, status)
values ($1::text, $2::text, $3::text, nullif($4::text, ''), $5::text, 'processing')
returning id::text, created_at, updated_at;
`

const QUpdateVideoJobStatus = `--sql 72df622e-46b0-4547-9f00-ed41f6451cef
with target as (
    select status from video_jobs where id = $1::uuid
),
updated as (
    update video_jobs
    set status = $2::text,
        result_path = case when $2::text = 'completed' then $3::text else null end,
        error_message = case when $2::text = 'error' then $4::text else null end,
        updated_at = now()
    where id = $1::uuid
      and status = 'processing'
    returning id
)
select (select status from target), (select count(*) from updated);
`

const QSelectVideoJob = `--sql fda91583-8090-434d-98d0-a635c22654f0
select id::text, owner_id, filename, source_path, coalesce(source_language, ''), target_language,
       status, result_path, error_message, thumbnail_path, created_at, updated_at
from video_jobs
where id = $1::uuid;
`

const QSelectVideoJobForOwner = `--sql 2437fc0b-5ce0-431e-9026-05dc1379f0a3
select id::text, owner_id, filename, source_path, coalesce(source_language, ''), target_language,
       status, result_path, error_message, thumbnail_path, created_at, updated_at
from video_jobs
where id = $1::uuid
  and owner_id = $2::text;
`

const QListVideoJobsByOwner = `--sql 2f88271b-353d-48d0-8dbb-6db6426fb373
select id::text, owner_id, filename, source_path, coalesce(source_language, ''), target_language,
       status, result_path, error_message, thumbnail_path, created_at, updated_at
from video_jobs
where owner_id = $1::text
order by created_at desc;
`

const QDeleteVideoJob = `--sql e893709b-27dc-4119-a250-2f884d6ba500
delete from video_jobs
where id = $1::uuid
  and owner_id = $2::text;
`

const QSetVideoJobThumbnail = `--sql 5b5edbe9-855d-4a3e-bca3-8733c25468c1
update video_jobs
set thumbnail_path = $2::text,
    updated_at = now()
where id = $1::uuid;
`

const QVideoJobPathReferenced = `--sql 3f905bb8-e7da-4255-86b9-8484e803ef39
select exists (
    select 1 from video_jobs
    where source_path = $1::text
       or result_path = $1::text
       or thumbnail_path = $1::text
);
`
